// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

// Degraded-read: the region overlaps a dead position. With single parity a
// nested siots reads the surviving positions and XORs the missing one back;
// with dual parity the same work is recovery-verify's.

func (s *SubRequest) degraded() stateStatus {
	if st, ok := s.boundary(); ok {
		return st
	}
	if (s.grp().Dead() | s.seenDead).Count() > s.grp().Parity {
		return s.finish(StatusShutdown)
	}
	s.releaseResources()
	if s.grp().Parity > 1 {
		s.transition(stVerify)
		return stateContinue
	}
	return s.spawn(AlgDegradedRead, stDegradedDone)
}

func (s *SubRequest) degradedDone() stateStatus {
	if st, ok := s.boundary(); ok {
		return st
	}
	c := s.takeNested()
	switch c.status {
	case StatusSuccess:
		s.data = c.data
		return s.finish(StatusSuccess)
	case statusIOFailed:
		if c.qual.retryable {
			return s.restart()
		}
		return s.finish(StatusShutdown)
	case StatusMediaError:
		return s.escalate(stVerify)
	case StatusAborted, StatusDropped, StatusShutdown:
		return s.finish(c.status)
	}
	return s.fail("%s returned %s", c, c.status)
}

// nested: compare what the drives and the group say now with the snapshot
// taken at start
func (s *SubRequest) degradedCompleted() stateStatus {
	if st, ok := s.boundary(); ok {
		return st
	}
	b := newBoard(s.entries)
	switch {
	case b.aborted != 0:
		return s.finish(StatusAborted)
	case b.completed < s.waitCount:
		return s.fail("resumed with %d/%d completions", b.completed, s.waitCount)
	case (s.deadSnap | b.dead | s.grp().Dead()).Count() > s.grp().Parity:
		return s.finish(statusIOFailed)
	case s.grp().Dead() != s.groupSnap || b.retry != 0:
		s.qual.retryable = true
		return s.finish(statusIOFailed)
	case b.dropped != 0:
		return s.finish(StatusDropped)
	case b.media != 0:
		return s.finish(StatusMediaError)
	}
	s.transition(stReconstruct)
	return stateContinue
}
