// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

import (
	"fmt"

	"github.com/NVIDIA/raidio/cmn/cos"
)

// errorBoard aggregates drive completions; recomputed at each evaluation
type errorBoard struct {
	dead      cos.PosMask
	retry     cos.PosMask
	media     cos.PosMask
	dropped   cos.PosMask
	aborted   cos.PosMask
	completed int
	success   int
}

type decision uint8

// in priority order
const (
	decAborted decision = iota
	decWaiting
	decShutdown
	decDegraded
	decMedia
	decDropped
	decRetry
	decSuccess
)

var decText = [...]string{"aborted", "waiting", "shutdown", "degraded", "media-error", "dropped", "retryable", "success"}

func (d decision) String() string { return decText[d] }

// classifyIn holds everything (other than the board) a decision depends on
type classifyIn struct {
	groupDead cos.PosMask // as loaded at this decision point
	touched   cos.PosMask // positions the read depends on
	waitCount int
	tolerance int // redundancy positions of the group
	aborted   bool
}

func newBoard(entries []*fruIO) (b errorBoard) {
	for _, e := range entries {
		if !e.done {
			continue
		}
		b.completed++
		switch e.status {
		case DriveSuccess:
			b.success++
		case DriveDead:
			b.dead = b.dead.Add(e.pos)
		case DriveRetryable:
			b.retry = b.retry.Add(e.pos)
		case DriveMediaError:
			b.media = b.media.Add(e.pos)
		case DriveDropped:
			b.dropped = b.dropped.Add(e.pos)
		case DriveAborted:
			b.aborted = b.aborted.Add(e.pos)
		}
	}
	return b
}

func (b *errorBoard) String() string {
	return fmt.Sprintf("board[%d/%d dead=%s retry=%s media=%s dropped=%s aborted=%s]",
		b.success, b.completed, b.dead, b.retry, b.media, b.dropped, b.aborted)
}

// classify is a pure function of its inputs
func classify(b *errorBoard, in *classifyIn) decision {
	dead := b.dead | in.groupDead
	switch {
	case in.aborted || b.aborted != 0:
		return decAborted
	case b.completed < in.waitCount:
		return decWaiting
	case dead.Count() > in.tolerance:
		return decShutdown
	case b.dead != 0 || in.groupDead.Overlaps(in.touched):
		return decDegraded
	case b.media != 0:
		return decMedia
	case b.dropped != 0:
		return decDropped
	case b.retry != 0:
		return decRetry
	}
	return decSuccess
}
