// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/NVIDIA/raidio/cmn/cos"
	"github.com/NVIDIA/raidio/cmn/debug"
	"github.com/NVIDIA/raidio/cmn/nlog"
	"github.com/NVIDIA/raidio/memsys"
	"github.com/NVIDIA/raidio/stats"
	"github.com/NVIDIA/raidio/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	stateID     uint8
	stateStatus uint8

	qualifier struct {
		retryable   bool // nested: the condition may clear on its own
		deadTouched bool // nested: a read hit a position not known dead at start
	}

	// SubRequest (siots) reads one region confined to a single stripe.
	// It is driven only by its own state functions, one worker at a time;
	// asynchronous events (drive completions, deferred allocation, stripe
	// gate, nested siots) resume it through signal().
	SubRequest struct {
		ctx      context.Context
		span     trace.Span
		started  time.Time
		err      error
		eng      *Engine
		req      *Request
		parent   *SubRequest
		nested   *SubRequest // at most one, owned
		pages    *memsys.Pages
		gateErr  error
		name     string
		entries  []*fruIO
		data     []byte // region payloads, valid on success
		region   Region
		plan     plan
		stripe   uint64
		mediaLBA uint64

		// dead positions: group mask at the last decision point (plus
		// positions this siots saw completing Dead), and the group mask
		// alone as loaded by a nested siots at start
		deadSnap  cos.PosMask
		groupSnap cos.PosMask
		seenDead  cos.PosMask

		outstanding atomic.Int32
		running     atomic.Bool

		waitCount   int
		retries     int
		restarts    int
		escalations int

		state     stateID
		alg       Algorithm
		prio      Priority
		status    Status
		qual      qualifier
		orphaned  bool // reads may still land in the buffers
		retrying  bool
		unblocked bool
		gateHeld  bool
	}
)

const (
	stateContinue stateStatus = iota
	stateWaiting
)

const (
	stStart stateID = iota
	stAlloc
	stAllocResumed
	stSetup
	stSend
	stCompleted
	stValidate
	stVerify
	stVerifyGated
	stVerifyDone
	stDegraded
	stDegradedDone
	stReconstruct
	stTerminal
)

var stateText = [...]string{
	"start", "alloc", "alloc-resumed", "setup", "send", "completed", "validate",
	"verify", "verify-gated", "verify-done", "degraded", "degraded-done", "reconstruct", "terminal",
}

func (st stateID) String() string { return stateText[st] }

func newSiots(r *Request, region Region, stripe uint64, seq int) *SubRequest {
	s := &SubRequest{
		eng:     r.eng,
		req:     r,
		name:    fmt.Sprintf("%s.%d", r.id, seq),
		region:  region,
		stripe:  stripe,
		alg:     r.alg,
		prio:    r.prio,
		started: time.Now(),
	}
	s.ctx, s.span = s.eng.tracer.Start(r.ctx, "siots", trace.WithAttributes(
		attribute.String("siots", s.name),
		attribute.Int64("lba", int64(region.LBA)),
		attribute.Int("blocks", region.Blocks),
		attribute.Int64("stripe", int64(stripe)),
	))
	return s
}

func (s *SubRequest) newNested(alg Algorithm) *SubRequest {
	c := &SubRequest{
		eng:      s.eng,
		req:      s.req,
		parent:   s,
		name:     s.name + "/" + alg.String(),
		region:   s.region,
		stripe:   s.stripe,
		alg:      alg,
		prio:     s.prio,
		seenDead: s.seenDead,
		started:  time.Now(),
	}
	c.ctx, c.span = s.eng.tracer.Start(s.ctx, alg.String(), trace.WithAttributes(
		attribute.String("siots", c.name),
		attribute.String("dead", s.grp().Dead().String()),
	))
	return c
}

func (s *SubRequest) String() string {
	return fmt.Sprintf("siots[%s %s %s %s]", s.name, s.alg, s.region, s.state)
}

func (s *SubRequest) grp() *Group { return s.eng.grp }

// abort: explicit, or the request's context is done
func (s *SubRequest) isAborted() bool { return s.req.aborted.Load() || s.req.ctx.Err() != nil }

func (s *SubRequest) transition(next stateID) {
	if s.eng.cfg.Trace.States {
		nlog.Infof("%s -> %s", s, next)
	}
	s.state = next
}

//
// execution: run, arm/signal/suspend
//

func (s *SubRequest) run() {
	if !s.running.CompareAndSwap(false, true) {
		cos.AssertMsg(false, s.String()+": concurrent re-entry")
	}
	for s.step() == stateContinue {
	}
}

func (s *SubRequest) step() stateStatus {
	switch s.state {
	case stStart:
		if s.alg.nested() {
			return s.startNested()
		}
		return s.start()
	case stAlloc:
		return s.alloc()
	case stAllocResumed:
		return s.allocResumed()
	case stSetup:
		return s.setup()
	case stSend:
		return s.send()
	case stCompleted:
		switch s.alg {
		case AlgRecoveryVerify:
			return s.verifyCompleted()
		case AlgDegradedRead:
			return s.degradedCompleted()
		}
		return s.readCompleted()
	case stValidate:
		return s.validate()
	case stVerify:
		return s.verify()
	case stVerifyGated:
		return s.verifyGated()
	case stVerifyDone:
		return s.verifyDone()
	case stDegraded:
		return s.degraded()
	case stDegradedDone:
		return s.degradedDone()
	case stReconstruct:
		return s.rebuild(s.alg == AlgDegradedRead)
	case stTerminal:
		return s.terminate()
	}
	return s.fail("invalid state %d", s.state)
}

// arm expects n events; the extra count is dropped by suspend()
func (s *SubRequest) arm(n int) {
	debug.Assertf(s.outstanding.Load() == 0, "%s: armed twice", s)
	s.outstanding.Store(int32(n + 1))
}

func (s *SubRequest) disarm() { s.outstanding.Store(0) }

// signal delivers one event; the last one reschedules the siots
func (s *SubRequest) signal() {
	if s.outstanding.Add(-1) == 0 {
		s.eng.schedule(s)
	}
}

// suspend returns stateContinue if all armed events have already arrived
func (s *SubRequest) suspend() stateStatus {
	s.running.Store(false)
	if s.outstanding.Add(-1) == 0 {
		s.running.Store(true)
		return stateContinue
	}
	return stateWaiting
}

// boundary checks abort, then quiesce, on every resumption. It parks the
// siots while the group is quiesced; Unquiesce (or abort) re-enters the
// current state.
func (s *SubRequest) boundary() (stateStatus, bool) {
	if s.isAborted() {
		return s.finish(StatusAborted), true
	}
	if !s.grp().Quiesced() {
		return stateContinue, false
	}
	s.arm(1)
	if !s.grp().park(s, s.signal) {
		s.disarm()
		if s.isAborted() {
			return s.finish(StatusAborted), true
		}
		return stateContinue, false
	}
	s.eng.stats.Inc(stats.ParkCount)
	if nlog.V(4) {
		nlog.Infoln(s, "parked")
	}
	return s.suspend(), true
}

//
// common states
//

func (s *SubRequest) alloc() stateStatus {
	s.arm(1)
	pg, st := s.eng.mm.Request(s.plan.sectors, s.allocDone)
	switch st {
	case memsys.AllocImmediate:
		s.disarm()
		s.pages = pg
		s.transition(stSetup)
		return stateContinue
	case memsys.AllocPending:
		s.eng.stats.Inc(stats.AllocPendCount)
		s.transition(stAllocResumed)
		return s.suspend()
	}
	s.disarm()
	return s.fail("allocation of %d sectors refused (%s)", s.plan.sectors, st)
}

func (s *SubRequest) allocDone(pg *memsys.Pages) {
	s.pages = pg
	s.signal()
}

func (s *SubRequest) allocResumed() stateStatus {
	if st, ok := s.boundary(); ok {
		return st
	}
	s.transition(stSetup)
	return stateContinue
}

func (s *SubRequest) setup() stateStatus {
	if err := s.setupFrus(); err != nil {
		return s.fail("%v", err)
	}
	s.transition(stSend)
	return stateContinue
}

func (s *SubRequest) send() stateStatus {
	s.transition(stCompleted)
	s.arm(len(s.entries))
	if err := s.sendChain(); err != nil {
		// issued reads complete into a siots that no longer waits
		s.orphaned = true
		return s.fail("%v", err)
	}
	if s.eng.cfg.Raid.PipelineGen {
		s.unblock()
	}
	return s.suspend()
}

// spawn starts the nested siots and waits for it
func (s *SubRequest) spawn(alg Algorithm, next stateID) stateStatus {
	debug.Assert(s.nested == nil, s.String())
	s.nested = s.newNested(alg)
	s.transition(next)
	s.arm(1)
	s.eng.schedule(s.nested)
	return s.suspend()
}

func (s *SubRequest) takeNested() *SubRequest {
	c := s.nested
	cos.Assert(c != nil && c.state == stTerminal)
	s.nested = nil
	return c
}

//
// terminal
//

func (s *SubRequest) finish(st Status) stateStatus {
	s.status = st
	s.transition(stTerminal)
	return stateContinue
}

func (s *SubRequest) finishMedia(lba uint64) stateStatus {
	s.mediaLBA = lba
	return s.finish(StatusMediaError)
}

// fail terminates with an internal error: always traced, never retried
func (s *SubRequest) fail(format string, a ...any) stateStatus {
	err := NewErrInternal("%s: "+format, append([]any{s}, a...)...)
	s.err = err
	nlog.ErrorDepth(1, err, "\n", s.dump())
	tracing.SetError(s.span, err)
	return s.finish(StatusInternal)
}

func (s *SubRequest) dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\t%s prio=%s wait=%d dead=%s seen=%s %s\n", s, s.prio, s.waitCount, s.deadSnap, s.seenDead, &s.plan)
	fmt.Fprintf(&sb, "\tretries=%d restarts=%d escalations=%d aborted=%t quiesced=%t\n",
		s.retries, s.restarts, s.escalations, s.isAborted(), s.grp().Quiesced())
	if s.orphaned {
		// completions may still be landing
		fmt.Fprintf(&sb, "\t%d entries in flight\n", len(s.entries))
		return sb.String()
	}
	for _, e := range s.entries {
		sb.WriteString("\t")
		sb.WriteString(e.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

func (s *SubRequest) releaseResources() {
	if s.pages != nil {
		if s.orphaned {
			s.eng.mm.Drop(s.pages)
		} else {
			s.eng.mm.Free(s.pages)
		}
		s.pages = nil
	}
	s.entries = nil
	s.waitCount = 0
}

func (s *SubRequest) releaseGate() {
	if s.gateHeld {
		s.eng.gates.release(s.stripe)
		s.gateHeld = false
	}
}

// unblock lets the request generate its next siots, once
func (s *SubRequest) unblock() {
	if s.parent != nil || s.unblocked {
		return
	}
	s.unblocked = true
	s.req.generate()
}

func (s *SubRequest) terminate() stateStatus {
	if s.nested != nil {
		debug.Assert(s.nested.state == stTerminal, s.nested.String())
		s.nested = nil
	}
	s.releaseResources()
	s.releaseGate()

	s.eng.stats.IncWith(stats.SiotsCount, prometheus.Labels{stats.LabelAlg: s.alg.String(), stats.LabelStatus: s.status.String()})
	if s.status == StatusInternal {
		s.eng.stats.Inc(stats.InternalErrCount)
	}
	s.span.SetAttributes(attribute.String("status", s.status.String()))
	if s.status == StatusMediaError {
		s.span.SetAttributes(attribute.Int64("media.lba", int64(s.mediaLBA)))
	}
	if s.status != StatusSuccess && s.status != StatusInternal {
		s.span.SetStatus(codes.Error, s.status.String())
	}
	s.span.End()
	if s.status != StatusSuccess || nlog.V(4) {
		nlog.Infof("%s: %s in %v", s, s.status, time.Since(s.started))
	}

	s.running.Store(false)
	if s.parent != nil {
		s.parent.signal()
		return stateWaiting
	}
	s.req.siotsDone(s)
	s.unblock()
	return stateWaiting
}
