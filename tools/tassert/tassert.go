// Package tassert provides common asserts for tests
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package tassert

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

const stackDepth = 8

var (
	fatal   = make(map[string]bool)
	fatalMu sync.Mutex
)

// CheckFatal fails the test on the first error; a second call from the same
// test (e.g., from another goroutine) only logs and exits the goroutine
func CheckFatal(tb testing.TB, err error) {
	if err == nil {
		return
	}
	fatalMu.Lock()
	dup := fatal[tb.Name()]
	fatal[tb.Name()] = true
	fatalMu.Unlock()
	if dup {
		tb.Logf("--- %s: duplicate CheckFatal: %v", tb.Name(), err)
		runtime.Goexit()
	}
	printStack()
	tb.Fatal(timestamp(), err)
}

func Fatalf(tb testing.TB, cond bool, format string, args ...any) {
	if !cond {
		printStack()
		tb.Fatalf(format, args...)
	}
}

func Errorf(tb testing.TB, cond bool, format string, args ...any) {
	if !cond {
		printStack()
		tb.Errorf(format, args...)
	}
}

func timestamp() string { return "[" + time.Now().Format("15:04:05.000000") + "]" }

// printStack writes the module's callers, skipping this package
func printStack() {
	var sb strings.Builder
	sb.WriteString("    tassert.printStack:\n")
	for i := 2; i < 2+stackDepth; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		idx := strings.Index(file, "raidio/")
		if idx < 0 {
			break
		}
		fmt.Fprintf(&sb, "\t%s:%d\n", file[idx+len("raidio/"):], line)
	}
	os.Stderr.WriteString(sb.String())
}
