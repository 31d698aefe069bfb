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
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/fusewire/fusewire/pkg/log"
)

// Flag types for the logger knobs shared by all commands: -log-mode,
// -log-filter and -log-backtrace-at.

type logMode struct {
	m   log.Mode
	set bool
}

func (l logMode) String() string {
	return modeToString(l.m)
}

func (l *logMode) Set(value string) error {
	l.set = true

	m, err := modeFromString(value)
	if err != nil {
		return err
	}
	l.m = m
	return nil
}

type fileLogMode struct {
	fname string
	fmode log.Mode
}
type logFilter []fileLogMode

func (l logFilter) String() string {
	var parts []string
	for _, flm := range l {
		parts = append(parts, fmt.Sprintf("%s:%s", flm.fname, modeToString(flm.fmode)))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

var (
	logFileNameRegex = regexp.MustCompile(`^[\w\-]+\.go$`)
	logModeRegex     = regexp.MustCompile(`^(info|debug|warn|error)(\|(info|debug|warn|error))*$`)
	lineNumberRegex  = regexp.MustCompile(`^\d+$`)
)

func (l *logFilter) Set(value string) error {
	for _, f := range strings.Split(value, ",") {
		f := strings.Split(f, ":")
		if len(f) != 2 {
			return fmt.Errorf("improperly formatted filter: %s, expected fname.go:mode", f)
		}

		fname, mode := f[0], f[1]
		if !logFileNameRegex.MatchString(fname) {
			return fmt.Errorf("expected filename '%s' to match the regex '%s'", fname, logFileNameRegex)
		}
		if !logModeRegex.MatchString(mode) {
			return fmt.Errorf("expected mode '%s' to match the regex '%s'", mode, logModeRegex)
		}

		fmode, err := modeFromString(mode)
		if err != nil {
			return err
		}
		*l = append(*l, fileLogMode{fname: fname, fmode: fmode})
	}
	return nil
}

type backtracePoints []string

func (l *backtracePoints) String() string {
	return fmt.Sprint(*l)
}

func (l *backtracePoints) Set(value string) error {
	for _, f := range strings.Split(value, ",") {
		f := strings.Split(f, ":")
		if len(f) != 2 {
			return fmt.Errorf("improperly formatted tracepoint: %s, expected fname.go:line", f)
		}

		fname, lnumber := f[0], f[1]
		if !logFileNameRegex.MatchString(fname) {
			return fmt.Errorf("expected filename '%s' to match the regex '%s'", fname, logFileNameRegex)
		}
		if !lineNumberRegex.MatchString(lnumber) {
			return fmt.Errorf("expected line number '%s' to match the regex '%s'", lnumber, lineNumberRegex)
		}
		*l = append(*l, fmt.Sprintf("%s:%s", fname, lnumber))
	}

	return nil
}

func modeFromString(value string) (log.Mode, error) {
	var m log.Mode
	for _, mode := range strings.Split(value, "|") {
		switch mode {
		case "info":
			m |= log.InfoMode
		case "debug":
			m |= log.DebugMode
		case "warn":
			m |= log.WarnMode
		case "error":
			m |= log.ErrorMode
		case "disabled":
			m = log.DisabledMode
		default:
			return m, fmt.Errorf("unrecognized mode: %v", mode)
		}
	}
	return m, nil
}

func modeToString(m log.Mode) string {
	if m == log.DisabledMode {
		return "disabled"
	}

	var buf bytes.Buffer
	if (m & log.InfoMode) != log.DisabledMode {
		buf.WriteString("info|")
	}
	if (m & log.WarnMode) != log.DisabledMode {
		buf.WriteString("warn|")
	}
	if (m & log.ErrorMode) != log.DisabledMode {
		buf.WriteString("error|")
	}
	if (m & log.DebugMode) != log.DisabledMode {
		buf.WriteString("debug|")
	}
	return strings.TrimSuffix(buf.String(), "|")
}
