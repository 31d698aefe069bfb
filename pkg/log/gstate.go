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
	"sync"
	"sync/atomic"
)

// The filter state is package global: every Logger consults it, which
// is what lets a single -log-filter flag steer all of them. The maps
// are copy-on-write behind atomic.Values so the read on each log
// statement takes no lock; writers serialize on the mutexes and swap
// in a fresh copy.
type tracePointMap map[string]struct{} // keyed fname.go:linenumber
type fileModeMap map[string]Mode       // keyed fname.go
type gstateT struct {
	gmode        atomic.Value
	tracePointMu struct {
		sync.Mutex
		m atomic.Value // type: tracePointMap
	}
	fileModeMu struct {
		sync.Mutex
		m atomic.Value // type: fileModeMap
	}
}

var gstate gstateT

// Need to initialize the atomics; to be used once during init time.
func init() {
	gstate.gmode.Store(DefaultMode)
	gstate.tracePointMu.m.Store(make(tracePointMap))
	gstate.fileModeMu.m.Store(make(fileModeMap))
}

// SetGlobalLogMode sets the global log mode to the one specified. Logging
// outside what's included in the mode is thereby suppressed.
func SetGlobalLogMode(m Mode) {
	gstate.gmode.Store(m)
}

// GetGlobalLogMode gets the currently set global log mode.
func GetGlobalLogMode() Mode {
	return gstate.gmode.Load().(Mode)
}

// SetTracePoint enables the provided tracepoint. A tracepoint is of the form
// filename.go:line-number (compiles to [\w]+.go:[\d]+) corresponding to the
// position of a logging statement that once enabled, emits a backtrace when
// the logging statement is executed. The specified tracepoint is agnostic to
// the mode, i.e. Logger.{Info|Warn|Error|Fatal|Debug}{,f}, used at the line.
func SetTracePoint(tp string) {
	gstate.tracePointMu.Lock()
	ma := gstate.tracePointMu.m.Load().(tracePointMap)
	mb := make(tracePointMap)
	for tp := range ma {
		mb[tp] = struct{}{}
	}
	mb[tp] = struct{}{}
	gstate.tracePointMu.m.Store(mb)
	gstate.tracePointMu.Unlock()
}

// ResetTracePoint resets the provided tracepoint so that a backtraces are no
// longer emitted when the specified logging statement is executed. See comment
// for SetTracePoint for what a tracepoint is.
func ResetTracePoint(tp string) {
	gstate.tracePointMu.Lock()
	ma := gstate.tracePointMu.m.Load().(tracePointMap)
	mb := make(tracePointMap)
	for tp := range ma {
		mb[tp] = struct{}{}
	}
	delete(mb, tp)
	gstate.tracePointMu.m.Store(mb)
	gstate.tracePointMu.Unlock()
}

// GetTracePoint checks if the corresponding tracepoint is enabled.
func GetTracePoint(tp string) (tpenabled bool) {
	tpmap := gstate.tracePointMu.m.Load().(tracePointMap)
	_, ok := tpmap[tp]
	return ok
}

// SetFileLogMode sets the log mode for the provided filename. Subsequent
// logging statements within the file get filtered accordingly.
func SetFileLogMode(fname string, m Mode) {
	gstate.fileModeMu.Lock()
	ma := gstate.fileModeMu.m.Load().(fileModeMap)
	mb := make(fileModeMap)
	for fname, m := range ma {
		mb[fname] = m
	}
	mb[fname] = m
	gstate.fileModeMu.m.Store(mb)
	gstate.fileModeMu.Unlock()
}

// GetFileLogMode gets the log mode for the specified file.
func GetFileLogMode(fname string) (m Mode, ok bool) {
	fmmap := gstate.fileModeMu.m.Load().(fileModeMap)
	m, ok = fmmap[fname]
	return m, ok
}

// ResetFileLogMode resets the log mode for the provided filename. Subsequent
// logging statements within the file get filtered as per the global log mode.
func ResetFileLogMode(fname string) {
	gstate.fileModeMu.Lock()
	ma := gstate.fileModeMu.m.Load().(fileModeMap)
	mb := make(fileModeMap)
	for fname, m := range ma {
		mb[fname] = m
	}
	delete(mb, fname)
	gstate.fileModeMu.m.Store(mb)
	gstate.fileModeMu.Unlock()
}
