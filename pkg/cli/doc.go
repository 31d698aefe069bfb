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

// Package cli allows the construction of structured command-line interfaces with sub-commands and
// help topics. This is very similar to the interface in git where the top-level program name (git)
// is preceded by a qualifier that determines what sub-command to execute
// (git {reflog,commit,cherry-pick}).
//
// Package cli explicitly avoid init time global hooks and has a minimal binary size footprint.
//
// Example (from fusewire):
//
//      // We aggregate all the top-level commands, accessible via 'fusewire <command> ...', as needed.
//	    var commands cli.Commands
//
//	    // We include top level commands for the example server and the ABI dump tool.
//	    commands = append(commands, helloserver.HelloServerCmd)
//	    commands = append(commands, abidump.AbiDumpCmd)
//
//      // We also include documentation pseudo-commands for the architecture and versioning model.
//      commands = append(commands, doc.ArchitectureCmd)
//      commands = append(commands, doc.VersioningCmd)
//
//      // We define the top level CLI blurb here.
//      abstract := "Fusewire is a kernel-side FUSE/CUSE wire protocol library for Go."
//      if err := cli.Process(abstract, commands); err != nil {
//      	os.Exit(1)
//      }
//
// This generates the following top-level behaviour:
//
//      $ fusewire {,-h,help}
//      Fusewire is a kernel-side FUSE/CUSE wire protocol library for Go.
//
//      Usage:
//
//          fusewire command [arguments]
//
//      The commands are:
//
//              abi-dump               abi-dump command overview
//              hello-server           hello-server command overview
//
//      Use 'fusewire help [command]' for more information about a command.
//
//      Additional help topics:
//
//              architecture           fusewire system architecture overview
//              versioning             protocol versioning overview
//
//      Use "fusewire help [topic]" for more information about that topic.
//
// Using help for a listed command displays to following:
//
//      $ fusewire help hello-server
//      Usage: fusewire hello-server [-unmount] <mount-point>
//
//      Hello server detailed overview.
//
// Doing the same for an additional help topic, we get the following:
//
//      $ fusewire help architecture
//      Topic: fusewire system architecture overview
//
//      Detailed description about the system architecture for fusewire.
//
// Individual commands also have their own '-h' switches for additional command details.
//
//      $ fusewire hello-server -h
//      Usage:
//
//          fusewire hello-server [-unmount] <mount-point>
//
//          -unmount
//              Unmount the mount point and exit
//
package cli
