// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

import (
	"github.com/NVIDIA/raidio/cmn/nlog"
	"github.com/NVIDIA/raidio/stats"
)

// host read states: start -> alloc -> setup -> send -> completed -> validate,
// escalating to recovery-verify or degraded-read as the board dictates

func (s *SubRequest) start() stateStatus {
	if st, ok := s.boundary(); ok {
		return st
	}
	dead := s.grp().Dead()
	s.deadSnap = dead
	if dead.Count() > s.grp().Parity {
		return s.finish(StatusShutdown)
	}
	if dead.Overlaps(s.readMask()) {
		s.transition(stDegraded)
		return stateContinue
	}
	s.plan = s.planRead()
	s.transition(stAlloc)
	return stateContinue
}

func (s *SubRequest) readCompleted() stateStatus {
	if st, ok := s.boundary(); ok {
		return st
	}
	var (
		b  = newBoard(s.entries)
		in = classifyIn{
			groupDead: s.grp().Dead(),
			touched:   s.readMask(),
			waitCount: s.waitCount,
			tolerance: s.grp().Parity,
			aborted:   s.isAborted(),
		}
		d = classify(&b, &in)
	)
	s.deadSnap = in.groupDead
	s.seenDead |= b.dead
	if d != decSuccess && (s.eng.cfg.Trace.States || nlog.V(4)) {
		nlog.Infof("%s: %s => %s", s, &b, d)
	}
	switch d {
	case decAborted:
		return s.finish(StatusAborted)
	case decWaiting:
		return s.fail("resumed with %d/%d completions", b.completed, s.waitCount)
	case decShutdown:
		return s.finish(StatusShutdown)
	case decDegraded:
		s.transition(stDegraded)
	case decMedia, decRetry:
		return s.toVerify()
	case decDropped:
		return s.finish(StatusDropped)
	default:
		s.transition(stValidate)
	}
	return stateContinue
}

func (s *SubRequest) validate() stateStatus {
	full := s.alg == AlgVerifyRead || s.eng.cfg.Raid.CheckChecksum
	lba, res := s.checkSectors(full)
	if res != 0 && !full {
		// a stale stamp may be a misdirected read or a corrupted sector
		lba, res = s.checkSectors(true)
	}
	if res != 0 {
		nlog.Warningf("%s: %s at lba %d", s, res, lba)
		return s.toVerify()
	}
	if s.retrying {
		nlog.Infof("%s: succeeded on retry %d", s, s.retries)
		s.retrying = false
	}
	s.copyOut()
	return s.finish(StatusSuccess)
}

// toVerify escalates to recovery-verify unless this read is already known
// to be degraded (single parity)
func (s *SubRequest) toVerify() stateStatus {
	dead := s.grp().Dead() | s.seenDead
	if s.grp().Parity == 1 && dead.Overlaps(s.readMask()) {
		s.transition(stDegraded)
	} else {
		s.transition(stVerify)
	}
	return stateContinue
}

// escalate between the corrective sub-engines, a bounded number of times
func (s *SubRequest) escalate(next stateID) stateStatus {
	if s.escalations >= s.eng.cfg.Raid.MaxEscalations {
		nlog.Errorf("%s: giving up after %d escalations", s, s.escalations)
		return s.finish(StatusShutdown)
	}
	s.escalations++
	s.eng.stats.Inc(stats.EscalateCount)
	s.transition(next)
	return stateContinue
}

// restart from scratch with fresh resources: what was learned about the
// group (dead positions, per-drive state) is stale
func (s *SubRequest) restart() stateStatus {
	if s.restarts >= s.eng.cfg.Raid.MaxRestarts {
		nlog.Errorf("%s: giving up after %d restarts", s, s.restarts)
		return s.finish(StatusShutdown)
	}
	s.restarts++
	s.eng.stats.Inc(stats.RestartCount)
	nlog.Warningf("%s: redundancy state changed, restarting (%d)", s, s.restarts)

	s.releaseResources()
	s.plan = plan{}
	s.deadSnap, s.seenDead = 0, 0
	s.retrying = false
	s.data = nil
	s.transition(stStart)
	return stateContinue
}
