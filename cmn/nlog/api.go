// Package nlog - raidio logger, provides buffering, timestamping, and writing
// to stderr or a log file
/*
 * Copyright (c) 2023-2026, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"io"
	"sync/atomic"
)

// Flush actions
const (
	ActNone = iota
	ActExit
)

var verbosity atomic.Int32

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// V reports whether logging at the given verbosity is enabled
func V(level int) bool { return int(verbosity.Load()) >= level }

func SetVerbosity(level int) { verbosity.Store(int32(level)) }

// SetOutput redirects all severities to w (tests, embedded usage);
// nil restores the configured destination.
func SetOutput(w io.Writer) {
	lg.mu.Lock()
	lg.override = w
	lg.mu.Unlock()
}

func SetTitle(s string) { title = s }

func Flush(action int) {
	lg.mu.Lock()
	lg.flush()
	if action == ActExit && lg.file != nil {
		lg.file.Sync()
		lg.file.Close()
		lg.file = nil
	}
	lg.mu.Unlock()
}
