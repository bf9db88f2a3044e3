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
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NVIDIA/raidio/cmn/nlog"
	"github.com/NVIDIA/raidio/parity"
	"github.com/NVIDIA/raidio/stats"
	"github.com/NVIDIA/raidio/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request is one host read. It splits its region by stripe into siots,
// generated one after another: the next siots is created when the previous
// one has launched its reads (PipelineGen) or has terminated.
type Request struct {
	ctx      context.Context
	actx     context.Context // canceled by Abort, for blocking waits
	cancel   context.CancelCauseFunc
	span     trace.Span
	started  time.Time
	eng      *Engine
	done     chan struct{}
	err      error
	id       string
	data     []byte
	res      Result
	region   Region
	next     uint64 // first block not yet handed to a siots
	mediaLBA uint64
	seq      int
	live     int
	mu       sync.Mutex
	aborted  atomic.Bool
	alg      Algorithm
	prio     Priority
	genDone  bool
	finished bool
}

func (r *Request) String() string {
	return fmt.Sprintf("req[%s %s %s]", r.id, r.alg, r.region)
}

func (r *Request) ID() string            { return r.id }
func (r *Request) Region() Region        { return r.region }
func (r *Request) Done() <-chan struct{} { return r.done }
func (r *Request) Aborted() bool         { return r.aborted.Load() }

// Wait blocks until the request completes
func (r *Request) Wait() Result {
	<-r.done
	return r.res
}

// Abort may be called at any time; siots observe it at their next boundary
func (r *Request) Abort() {
	if !r.aborted.CompareAndSwap(false, true) {
		return
	}
	r.cancel(ErrAborted)
	n := r.eng.grp.unpark(r)
	nlog.Infof("%s: abort (released %d parked)", r, n)
}

// generate hands the next stripe's worth of the region to a new siots
func (r *Request) generate() {
	r.mu.Lock()
	if r.genDone {
		r.mu.Unlock()
		return
	}
	if r.next >= r.region.End() || r.err != nil || r.aborted.Load() {
		r.genDone = true
		fin := r.live == 0
		r.mu.Unlock()
		if fin {
			r.finish()
		}
		return
	}
	var (
		sb     = r.eng.grp.StripeBlocks()
		stripe = r.next / sb
		end    = min((stripe+1)*sb, r.region.End())
		s      = newSiots(r, Region{LBA: r.next, Blocks: int(end - r.next)}, stripe, r.seq)
	)
	r.seq++
	r.live++
	r.next = end
	r.mu.Unlock()
	r.eng.schedule(s)
}

func (r *Request) siotsDone(s *SubRequest) {
	r.mu.Lock()
	r.live--
	if s.status == StatusSuccess {
		off := int(s.region.LBA-r.region.LBA) * parity.PayloadSize
		copy(r.data[off:], s.data)
	} else {
		r.merge(s.status, s.mediaLBA, s.err)
	}
	fin := r.genDone && r.live == 0
	r.mu.Unlock()
	if fin {
		r.finish()
	}
}

// merge keeps the most severe failure and the lowest media error lba;
// caller holds the lock
func (r *Request) merge(st Status, lba uint64, err error) {
	if st == StatusMediaError {
		r.mediaLBA = min(r.mediaLBA, lba)
	}
	if r.err == nil || st.severity() > r.res.Status.severity() {
		r.res.Status = st
		if err == nil {
			err = statusErr(st, lba)
		}
		r.err = err
	}
}

func (r *Request) finish() {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true
	if r.next < r.region.End() && r.res.Status == StatusSuccess && (r.aborted.Load() || r.ctx.Err() != nil) {
		r.merge(StatusAborted, 0, nil)
	}
	if r.res.Status == StatusMediaError {
		r.res.LBA = r.mediaLBA
		r.err = statusErr(StatusMediaError, r.mediaLBA)
	}
	if r.res.Status == StatusSuccess {
		r.res.Data = r.data
	}
	r.res.Err = r.err
	r.data = nil
	res := r.res
	r.mu.Unlock()

	st := res.Status.String()
	r.eng.stats.IncWith(stats.ReadCount, prometheus.Labels{stats.LabelStatus: st})
	r.eng.stats.Latency(stats.ReadLatency, time.Since(r.started))
	r.eng.stats.Add(stats.InflightSize, -1)
	r.span.SetAttributes(attribute.String("status", st))
	switch res.Status {
	case StatusSuccess:
	case StatusInternal:
		tracing.SetError(r.span, res.Err)
	default:
		r.span.SetStatus(codes.Error, st)
	}
	r.span.End()
	r.cancel(nil)
	if nlog.V(4) || res.Status != StatusSuccess {
		nlog.Infof("%s: %s in %v", r, st, time.Since(r.started))
	}
	close(r.done)
}

func newRequest(ctx context.Context, e *Engine, region Region, alg Algorithm, prio Priority) *Request {
	r := &Request{
		eng:      e,
		region:   region,
		next:     region.LBA,
		alg:      alg,
		prio:     prio,
		done:     make(chan struct{}),
		started:  time.Now(),
		mediaLBA: math.MaxUint64,
	}
	r.id = e.genID()
	r.ctx, r.span = e.tracer.Start(ctx, "read", trace.WithAttributes(
		attribute.String("request", r.id),
		attribute.String("algorithm", alg.String()),
		attribute.Int64("lba", int64(region.LBA)),
		attribute.Int("blocks", region.Blocks),
	))
	r.actx, r.cancel = context.WithCancelCause(r.ctx)
	return r
}
