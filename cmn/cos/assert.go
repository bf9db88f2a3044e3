// Package cos provides common low-level types and utilities for all raidio packages
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"fmt"

	"github.com/NVIDIA/raidio/cmn/nlog"
)

const assertMsg = "assertion failed"

// Always-on invariants, unlike cmn/debug. Formatting only happens on failure.

func Assert(cond bool) {
	if !cond {
		fatal(assertMsg)
	}
}

func AssertMsg(cond bool, msg string) {
	if !cond {
		fatal(assertMsg + ": " + msg)
	}
}

func Assertf(cond bool, format string, a ...any) {
	if !cond {
		fatal(assertMsg + ": " + fmt.Sprintf(format, a...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		fatal(err)
	}
}

// fatal flushes the log before panicking
func fatal(v any) {
	nlog.Flush(nlog.ActExit)
	panic(v)
}
