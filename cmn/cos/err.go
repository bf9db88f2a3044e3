// Package cos provides common low-level types and utilities for all raidio packages
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"fmt"
	"sync"
	ratomic "sync/atomic"

	"github.com/NVIDIA/raidio/cmn/debug"
)

const defaultMaxErrs = 8

// Errs collects distinct errors from concurrent workers, up to a limit
type Errs struct {
	errs []error
	cnt  int64
	cap  int
	mu   sync.Mutex
}

func NewErrs(maxErrs ...int) Errs {
	capacity := defaultMaxErrs
	if len(maxErrs) > 0 && maxErrs[0] > 0 {
		capacity = maxErrs[0]
	}
	return Errs{cap: capacity}
}

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) >= max(e.cap, 1) || e.has(err) {
		return
	}
	e.errs = append(e.errs, err)
	ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
}

// has compares by message: the same failure is often re-wrapped
func (e *Errs) has(err error) bool {
	msg := err.Error()
	for _, added := range e.errs {
		if added.Error() == msg {
			return true
		}
	}
	return false
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) JoinErr() (cnt int, err error) {
	if cnt = e.Cnt(); cnt > 0 {
		e.mu.Lock()
		err = errors.Join(e.errs...)
		e.mu.Unlock()
	}
	return
}

func (e *Errs) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch n := len(e.errs); n {
	case 0:
		return ""
	case 1:
		return e.errs[0].Error()
	default:
		return fmt.Sprintf("%v (and %d more error%s)", e.errs[0], n-1, Plural(n-1))
	}
}

func Plural(num int) (s string) {
	if num != 1 {
		s = "s"
	}
	return
}
