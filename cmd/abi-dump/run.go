// Copyright 2026 The Fusewire Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package abidump

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fusewire/fusewire/pkg/cli"
	"github.com/fusewire/fusewire/pkg/fuse"
)

var AbiDumpCmd = &cli.Command{
	Run:       abiDumpCmdRun,
	UsageLine: "abi-dump [-version 7.N] [-opcodes]",
	Short:     "print per-version wire structure layouts",
	Long: `
Abi-dump renders the encoded size of every version-dependent FUSE wire
structure, for each protocol minor version in the supported window, or
for a single version when -version is given. With -opcodes it also
lists the opcode table. The output is meant for auditing a kernel
trace against what this library reads and writes.
    `,
}

func abiDumpCmdRun(cmd *cli.Command, args []string) error {
	var (
		versionFlag string
		opcodesFlag bool
	)

	cmd.FlagSet.StringVar(&versionFlag, "version", "",
		"Protocol version to dump, of the form 7.N (default: all supported versions)")
	cmd.FlagSet.BoolVar(&opcodesFlag, "opcodes", false,
		"Also print the opcode table")

	if err := cmd.FlagSet.Parse(args); err != nil {
		return cli.CmdParseError(err)
	}
	if cmd.FlagSet.NArg() != 0 {
		return cli.CmdParseError(
			errors.New(fmt.Sprintf("unrecognized arguments: %v", cmd.FlagSet.Args())))
	}

	versions := fuse.SupportedVersions()
	if versionFlag != "" {
		p, err := parseVersion(versionFlag)
		if err != nil {
			return cli.CmdParseError(err)
		}
		if !p.Supported() {
			return fmt.Errorf("abi-dump: unsupported protocol version %s", p)
		}
		versions = []fuse.Protocol{p}
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
	for _, p := range versions {
		fmt.Fprintf(w, "FUSE %s\n", p)
		for _, l := range fuse.WireLayouts(p) {
			fmt.Fprintf(w, "  %s\t%d\n", l.Name, l.Size)
		}
		fmt.Fprintln(w)
	}

	if opcodesFlag {
		fmt.Fprintln(w, "opcodes")
		for _, op := range fuse.Opcodes() {
			fmt.Fprintf(w, "  %d\t%s\n", op, fuse.OpcodeName(op))
		}
	}
	return w.Flush()
}

func parseVersion(s string) (fuse.Protocol, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return fuse.Protocol{}, fmt.Errorf("malformed version %q, expected major.minor", s)
	}
	major, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return fuse.Protocol{}, fmt.Errorf("malformed version %q: %v", s, err)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return fuse.Protocol{}, fmt.Errorf("malformed version %q: %v", s, err)
	}
	return fuse.Protocol{Major: uint32(major), Minor: uint32(minor)}, nil
}
