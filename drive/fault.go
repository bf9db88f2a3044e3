// Package drive simulates the drives of a RAID group: sector stores per
// position, asynchronous completions, and fault injection.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package drive

import (
	"fmt"

	"github.com/NVIDIA/raidio/raid"
	"github.com/pkg/errors"
)

type FaultKind int

const (
	FaultRetryable FaultKind = iota
	FaultMedia
	FaultDropped
	FaultAborted
)

var faultText = map[FaultKind]string{
	FaultRetryable: "retryable",
	FaultMedia:     "media",
	FaultDropped:   "dropped",
	FaultAborted:   "aborted",
}

func (k FaultKind) String() string { return faultText[k] }

func ParseFaultKind(s string) (FaultKind, error) {
	for k, t := range faultText {
		if t == s {
			return k, nil
		}
	}
	return 0, errors.Errorf("invalid fault kind %q", s)
}

// AnyPBA matches every read of the position
const AnyPBA = ^uint64(0)

// Fault applies to reads of Pos covering PBA, Count times (0: forever).
// A media fault makes PBA and the rest of the read unreadable.
type Fault struct {
	PBA   uint64
	Pos   int
	Count int
	Kind  FaultKind
}

func (f *Fault) String() string {
	if f.PBA == AnyPBA {
		return fmt.Sprintf("fault[%s pos=%d n=%d]", f.Kind, f.Pos, f.Count)
	}
	return fmt.Sprintf("fault[%s pos=%d pba=%d n=%d]", f.Kind, f.Pos, f.PBA, f.Count)
}

func (f *Fault) covers(r *raid.ReadReq) bool {
	if f.Pos != r.Pos {
		return false
	}
	return f.PBA == AnyPBA || (f.PBA >= r.PBA && f.PBA < r.PBA+uint64(len(r.Sectors)))
}

// match returns the first fault covering the read and consumes one count;
// caller holds the lock
func (a *Array) match(r *raid.ReadReq) *Fault {
	for i, f := range a.faults {
		if !f.covers(r) {
			continue
		}
		if f.Count > 0 {
			f.Count--
			if f.Count == 0 {
				a.faults = append(a.faults[:i], a.faults[i+1:]...)
			}
		}
		return f
	}
	return nil
}
