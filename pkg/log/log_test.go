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
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"testing"
)

func expectLog(t *testing.T, buffer *bytes.Buffer, pattern string) {
	t.Helper()
	match, err := regexp.Match(pattern, buffer.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !match {
		t.Errorf("expected pattern %q, got: %s", pattern, buffer.String())
	}
	buffer.Reset()
}

func TestTracePointSetReset(t *testing.T) {
	tp := fmt.Sprintf("%s:%d", "t.go", 42)
	SetTracePoint(tp)
	if !GetTracePoint(tp) {
		t.Errorf("expected tracepoint %s to be enabled", tp)
	}
	ResetTracePoint(tp)
	if GetTracePoint(tp) {
		t.Errorf("expected tracepoint %s to be disabled after reset", tp)
	}
}

func TestTracePointUnsetByDefault(t *testing.T) {
	if GetTracePoint("u.go:7") {
		t.Error("expected unknown tracepoint to be disabled")
	}
}

func TestHeaderFormat(t *testing.T) {
	// The default flag set produces the mode byte, a compact date, a
	// microsecond timestamp and the short file position, in that order.
	buffer := new(bytes.Buffer)
	logger := New(Writer(buffer))

	logger.Info("session open")
	expectLog(t, buffer,
		`^I\d{6} \d{2}:\d{2}:\d{2}\.\d{6} log_test\.go:\d+\] session open\n$`)

	logger.Warnf("%d pending", 3)
	expectLog(t, buffer, `^W\d{6} .*log_test\.go:\d+\] 3 pending\n$`)
}

func TestFlagsOption(t *testing.T) {
	buffer := new(bytes.Buffer)
	logger := New(Writer(buffer), Flags(Lmode))

	logger.Error("mount failed")
	expectLog(t, buffer, `^E mount failed\n$`)
}

func TestGlobalModeFiltering(t *testing.T) {
	SetGlobalLogMode(InfoMode)
	defer SetGlobalLogMode(DefaultMode)

	buffer := new(bytes.Buffer)
	logger := New(Writer(buffer))

	logger.Debug("dropped")
	logger.Debugf("%s as well", "dropped")
	if buffer.Len() != 0 {
		t.Errorf("expected debug logs to be filtered, got: %s", buffer.String())
	}

	logger.Info("kept")
	expectLog(t, buffer, `^I.*\] kept\n$`)

	SetGlobalLogMode(DebugMode)
	logger.Debug("kept now")
	expectLog(t, buffer, `^D.*\] kept now\n$`)
}

func TestFileModeOverride(t *testing.T) {
	SetFileLogMode("log_test.go", ErrorMode)
	defer ResetFileLogMode("log_test.go")

	buffer := new(bytes.Buffer)
	logger := New(Writer(buffer))

	// The file override wins over the global mode, in both directions.
	logger.Info("dropped")
	if buffer.Len() != 0 {
		t.Errorf("expected info log to be filtered by the file override, got: %s", buffer.String())
	}
	logger.Error("kept")
	expectLog(t, buffer, `^E.*\] kept\n$`)
}

func TestTracePointBacktrace(t *testing.T) {
	SetGlobalLogMode(DisabledMode)
	defer SetGlobalLogMode(DefaultMode)

	// The tracepoint names the exact line of the logger.Info call
	// below, ten lines past the caller() call; keep the two in step
	// when editing this test.
	file, line := caller(0)
	tp := fmt.Sprintf("%s:%d", filepath.Base(file), line+10)
	SetTracePoint(tp)
	defer ResetTracePoint(tp)
	if !GetTracePoint(tp) {
		t.Fatalf("expected tracepoint %s to be enabled", tp)
	}

	buffer := new(bytes.Buffer)
	logger := New(Writer(buffer))
	logger.Info()
	if buffer.Len() == 0 {
		t.Fatal("expected a stack trace, found an empty buffer")
	}

	first, err := buffer.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if pattern := `^goroutine \d+ \[running\]:`; !regexp.MustCompile(pattern).MatchString(first) {
		t.Errorf("expected pattern (first line) %q, got: %s", pattern, first)
	}

	second, err := buffer.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	// The trace starts at our frame; the logger's own frames are
	// skipped.
	pattern := `^github\.com/fusewire/fusewire/pkg/log\.TestTracePointBacktrace`
	if !regexp.MustCompile(pattern).MatchString(second) {
		t.Errorf("expected pattern (second line) %q, got: %s", pattern, second)
	}
}
