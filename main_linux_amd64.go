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

package main

import (
	"os"

	"github.com/fusewire/fusewire/doc"
	"github.com/fusewire/fusewire/pkg/cli"

	abidump "github.com/fusewire/fusewire/cmd/abi-dump"
	helloserver "github.com/fusewire/fusewire/cmd/hello-server"
)

func main() {
	// We aggregate all the top-level commands (i.e. 'fusewire
	// <command> ...') as needed.
	var commands cli.Commands

	commands = append(commands, helloserver.HelloServerCmd)
	commands = append(commands, abidump.AbiDumpCmd)

	// We also include documentation pseudo-commands for the library
	// architecture and the protocol versioning story.
	commands = append(commands, doc.ArchitectureCmd)
	commands = append(commands, doc.VersioningCmd)

	// We define the top level CLI abstract here.
	abstract := "Fusewire is a kernel-side FUSE/CUSE wire protocol library for Go."
	if err := cli.Process(abstract, commands); err != nil {
		os.Exit(1)
	}
}
