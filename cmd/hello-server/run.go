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

package helloserver

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/fusewire/fusewire/pkg/cli"
	"github.com/fusewire/fusewire/pkg/fuse"
	"github.com/fusewire/fusewire/pkg/log"
)

var HelloServerCmd = &cli.Command{
	Run:       helloServerCmdRun,
	UsageLine: "hello-server [-unmount] [-direct-mount] [-allow-other] [logger flags] <mount-point>",
	Short:     "mount a read-only example file system",
	Long: `
Hello-server mounts a single-file, read-only file system at the given
mount point. It exists to exercise the wire protocol end to end
against a real kernel, and doubles as a starting point for writing
servers on top of this library.
    `,
}

func helloServerCmdRun(cmd *cli.Command, args []string) error {
	var (
		unmountFlag     bool
		directMountFlag bool
		allowOtherFlag  bool

		logDirFlag         string
		suppressStderrFlag bool
		logModeFlag        logMode
		logFilterFlag      logFilter
		backtracePointFlag backtracePoints
	)

	cmd.FlagSet.BoolVar(&unmountFlag, "unmount", false,
		"Unmount the file system at the specified directory")
	cmd.FlagSet.BoolVar(&directMountFlag, "direct-mount", false,
		"Call mount(2) directly instead of going through fusermount (needs CAP_SYS_ADMIN)")
	cmd.FlagSet.BoolVar(&allowOtherFlag, "allow-other", false,
		"Allow other users to access the mount")
	cmd.FlagSet.StringVar(&logDirFlag, "log-dir", "",
		"Write log files to the specified directory")
	cmd.FlagSet.BoolVar(&suppressStderrFlag, "suppress-stderr", false,
		"Suppress standard error logging")
	cmd.FlagSet.Var(&logModeFlag, "log-mode",
		"Log mode for logs emitted globally (can be overridden using -log-filter)")
	cmd.FlagSet.Var(&logFilterFlag, "log-filter",
		"Comma-separated list of pattern:level settings for file-filtered logging")
	cmd.FlagSet.Var(&backtracePointFlag, "log-backtrace-at",
		"Comma-separated list of filename:N settings to emit backtraces")

	if err := cmd.FlagSet.Parse(args); err != nil {
		return cli.CmdParseError(err)
	}

	if cmd.FlagSet.NArg() > 1 {
		return cli.CmdParseError(
			errors.New(fmt.Sprintf("unrecognized arguments: %v", cmd.FlagSet.Args()[1:])))
	}
	if cmd.FlagSet.NArg() == 0 {
		return cli.CmdParseError(errors.New("unspecified mount-point"))
	}
	mountPoint := cmd.FlagSet.Arg(0)

	if logModeFlag.set {
		log.SetGlobalLogMode(log.Mode(logModeFlag.m))
	}
	for _, flm := range logFilterFlag {
		log.SetFileLogMode(flm.fname, flm.fmode)
	}
	for _, tp := range backtracePointFlag {
		log.SetTracePoint(tp)
	}

	writer := ioutil.Discard
	if logDirFlag != "" {
		writer = log.LogRotationWriter(logDirFlag, 50<<20 /* 50 MiB */)
	}
	if !suppressStderrFlag {
		writer = log.MultiWriter(writer, os.Stderr)
	}
	writer = log.SynchronizedWriter(writer)
	logf := log.Ldate | log.Ltime | log.Lmicroseconds | log.Llongfile | log.LUTC | log.Lmode
	logger := log.New(log.Writer(writer), log.Flags(logf), log.SkipBasePath())

	if unmountFlag {
		if err := fuse.Unmount(mountPoint); err != nil {
			logger.Error(err.Error())
			return err
		}
		logger.Infof("unmounted point: %s", mountPoint)
		return nil
	}

	opts := []fuse.MountOption{
		fuse.FSName("hellofs"),
		fuse.Subtype("hellofs"),
		fuse.ReadOnly(),
		fuse.DefaultPermissions(),
	}
	if allowOtherFlag {
		opts = append(opts, fuse.AllowOther())
	}
	if directMountFlag {
		opts = append(opts, fuse.DirectMount())
	}

	cfg := &fuse.Config{
		Flags:  fuse.InitAsyncRead | fuse.InitParallelDirops,
		Logger: logger,
	}
	sess, err := fuse.Mount(mountPoint, cfg, opts...)
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	defer sess.Close()
	logger.Infof("mounted point: %s", mountPoint)

	if err := sess.Serve(context.Background(), newHelloFS(logger)); err != nil {
		logger.Error(err.Error())
		return err
	}
	return nil
}
