// Copyright 2018 Irfan Sharif.
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

// Package log implements modal execution logs. The package level hooks
// are what the command-line flags in cmd/hello-server plug into:
//
//     $ fusewire hello-server -h
//     ...
//       -log-dir string
//             Write log files to the specified directory.
//       -suppress-stderr
//             Suppress standard error logging.
//       -log-mode (info|debug|warn|error)
//             Log mode for logs emitted globally (can be overridden using -log-filter).
//       -log-filter value
//             Comma-separated list of pattern:level settings for file-filtered logging.
//       -log-backtrace-at value
//             Comma-separated list of filename:N settings; when any logging statement
//             at one of the specified locations executes, a stack trace is emitted.
//
// The same hooks (SetGlobalLogMode, SetFileLogMode, SetTracePoint) can
// be driven at runtime, so a serving process can accept logger
// reconfiguration without restarting.
//
// Basic example:
//
//      import "github.com/fusewire/fusewire/pkg/log"
//
//      ...
//
//      logger := log.New()
//      logger.Info("hello, world")
//
// The logger is configured through variadic options at construction:
// where it writes, what goes in the line header, and what path prefix
// to strip from file positions. Writers compose for synchronized,
// multiplexed or size-rotated output:
//
//      writer := os.Stderr
//      writer = log.MultiWriter(writer,
//                      log.LogRotationWriter("/logs", 50 << 20 /* 50 MiB */))
//      writer = log.SynchronizedWriter(writer)
//
//      logf := log.Lmode | log.Ldate | log.Ltime | log.Llongfile
//
//      logger := log.New(log.Writer(writer), log.Flags(logf))
package log
