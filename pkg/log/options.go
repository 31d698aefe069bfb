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

package log

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// Flag determines what gets included in the header of each log line.
// Flags are or'ed together, there is no control over the order the
// header items appear in.
type Flag int

const (
	Ldate         Flag = 1 << iota // the date in the local time zone: 180419
	Ltime                          // the time in the local time zone: 06:33:04
	Lmicroseconds                  // microsecond resolution: 06:33:04.606396 (implies Ltime)
	Llongfile                      // fully specified file name and line number: /a/b/c/d.go:23
	Lshortfile                     // final file name element and line number: d.go:23 (overrides Llongfile)
	LUTC                           // if Ldate or Ltime is set, use UTC rather than the local time zone
	Lmode                          // the mode of the log statement: I, W, E, F or D

	// LstdFlags is the default header format:
	//
	//   Myymmdd hh:mm:ss.micros fname.go:ln message
	LstdFlags = Lmode | Ldate | Ltime | Lmicroseconds | Lshortfile
)

// option is what New accepts; each one configures the Logger under
// construction.
type option func(*Logger)

// Writer configures the Logger to write out to the given writer. The
// writer is used as is; wrap it with SynchronizedWriter if the Logger
// is shared across goroutines.
func Writer(w io.Writer) option {
	return func(l *Logger) {
		l.w = w
	}
}

// Flags configures the Logger's header format, see the Flag constants
// above.
func Flags(f Flag) option {
	return func(l *Logger) {
		l.flag = f
	}
}

// BasePath configures the path prefix Llongfile drops from file names,
// typically the repository root.
func BasePath(path string) option {
	return func(l *Logger) {
		l.basePath = path
	}
}

// SkipBasePath is BasePath with the prefix discovered from the
// caller's position: we walk up from the calling file until a go.mod
// is found. If the sources aren't present on the host the file names
// are simply left fully specified.
func SkipBasePath() option {
	_, file, _, ok := runtime.Caller(1)
	if !ok {
		return func(l *Logger) {}
	}
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return BasePath(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return func(l *Logger) {}
		}
		dir = parent
	}
}
