// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

import (
	"context"

	"github.com/NVIDIA/raidio/cmn/nlog"
	"github.com/NVIDIA/raidio/stats"
)

// Recovery-verify: a nested siots that re-reads whole rows from every live
// position and reconstructs what is missing, unreadable, or invalid. At most
// one runs per stripe at any time (see stripeGates).

// parent: wait for the stripe gate
func (s *SubRequest) verify() stateStatus {
	if st, ok := s.boundary(); ok {
		return st
	}
	s.releaseResources()
	if s.prio < PrioNormal {
		s.prio = PrioNormal
	}
	s.transition(stVerifyGated)
	s.arm(1)
	go s.acquireGate()
	return s.suspend()
}

// runs on its own goroutine: the only blocking wait of the read path.
// Abort cancels the wait; verifyGated then finishes Aborted.
func (s *SubRequest) acquireGate() {
	ctx, cancel := context.WithTimeout(s.req.actx, s.eng.cfg.Raid.GateTimeout.D())
	s.gateErr = s.eng.gates.acquire(ctx, s.stripe)
	cancel()
	s.signal()
}

func (s *SubRequest) verifyGated() stateStatus {
	if s.gateErr == nil {
		s.gateHeld = true
	}
	if st, ok := s.boundary(); ok {
		return st
	}
	if err := s.gateErr; err != nil {
		s.gateErr = nil
		nlog.Errorf("%s: stripe %d gate: %v", s, s.stripe, err)
		return s.finish(StatusDropped)
	}
	return s.spawn(AlgRecoveryVerify, stVerifyDone)
}

func (s *SubRequest) verifyDone() stateStatus {
	if st, ok := s.boundary(); ok {
		return st
	}
	c := s.takeNested()
	s.releaseGate()
	switch c.status {
	case StatusSuccess:
		s.data = c.data
		return s.finish(StatusSuccess)
	case statusNotReady:
		switch {
		case c.qual.deadTouched:
			s.seenDead |= c.seenDead
			return s.escalate(stDegraded)
		case !c.qual.retryable:
			return s.finishMedia(s.region.LBA)
		case s.retries >= s.eng.cfg.Raid.RetryLimit:
			nlog.Errorf("%s: still failing after %d retries", s, s.retries)
			return s.finishMedia(s.region.LBA)
		}
		s.retries++
		s.retrying = true
		s.eng.stats.Inc(stats.RetryCount)
		s.transition(stStart)
		return stateContinue
	case statusIOFailed:
		return s.finish(StatusShutdown)
	case StatusMediaError:
		return s.finishMedia(max(c.mediaLBA, s.region.LBA))
	case StatusAborted, StatusDropped, StatusShutdown:
		return s.finish(c.status)
	}
	return s.fail("%s returned %s", c, c.status)
}

//
// nested siots (recovery-verify and degraded-read)
//

func (s *SubRequest) startNested() stateStatus {
	if st, ok := s.boundary(); ok {
		return st
	}
	s.groupSnap = s.grp().Dead()
	s.deadSnap = s.groupSnap | s.seenDead
	switch {
	case s.deadSnap.Count() > s.grp().Parity:
		return s.finish(statusIOFailed)
	case s.alg == AlgDegradedRead && s.deadSnap == 0:
		// came back before we started
		s.qual.retryable = true
		return s.finish(statusIOFailed)
	}
	s.plan = s.planRows(s.deadSnap)
	s.transition(stAlloc)
	return stateContinue
}

func (s *SubRequest) verifyCompleted() stateStatus {
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
	case b.dead != 0:
		s.seenDead |= b.dead
		s.qual.deadTouched = true
		return s.finish(statusNotReady)
	case b.retry != 0:
		s.qual.retryable = true
		return s.finish(statusNotReady)
	case b.dropped != 0:
		return s.finish(StatusDropped)
	}
	s.transition(stReconstruct)
	return stateContinue
}
