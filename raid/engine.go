// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/NVIDIA/raidio/cmn"
	"github.com/NVIDIA/raidio/cmn/nlog"
	"github.com/NVIDIA/raidio/memsys"
	"github.com/NVIDIA/raidio/parity"
	"github.com/NVIDIA/raidio/stats"
	"github.com/NVIDIA/raidio/tracing"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

// Engine services host reads of one RAID group
type (
	Engine struct {
		cfg     *cmn.Config
		grp     *Group
		drives  Drives
		mm      Allocator
		codec   Codec
		gates   *stripeGates
		runq    *runQueue
		stats   *stats.Tracker
		tracer  trace.Tracer
		wg      sync.WaitGroup
		started atomic.Bool
	}
	Option func(*Engine)
)

func WithAllocator(a Allocator) Option  { return func(e *Engine) { e.mm = a } }
func WithCodec(c Codec) Option          { return func(e *Engine) { e.codec = c } }
func WithStats(t *stats.Tracker) Option { return func(e *Engine) { e.stats = t } }
func WithTracer(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tracing.Tracer(tp) }
}

// NewEngine wires defaults for whatever the options leave out: a
// memsys.Pool sized by config, a parity.Codec for the group's geometry,
// a private metrics registry, and a no-op tracer.
func NewEngine(cfg *cmn.Config, grp *Group, drives Drives, opts ...Option) (*Engine, error) {
	if cfg == nil || grp == nil || drives == nil {
		return nil, errors.New("engine requires config, group, and drives")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, grp: grp, drives: drives, gates: newStripeGates(), runq: newRunQueue()}
	for _, opt := range opts {
		opt(e)
	}
	if e.mm == nil {
		e.mm = memsys.NewPool(grp.ID, parity.SectorSize, cfg.Memsys.MaxSectors, cfg.Memsys.SlabDepth)
	}
	if e.codec == nil {
		codec, err := parity.NewCodec(grp.DataDisks(), grp.Parity)
		if err != nil {
			return nil, err
		}
		e.codec = codec
	}
	if e.stats == nil {
		e.stats = stats.NewTracker(nil)
	}
	if e.tracer == nil {
		e.tracer = tracing.Tracer(nil)
	}
	return e, nil
}

func (e *Engine) String() string { return "engine[" + e.grp.String() + "]" }

func (e *Engine) Group() *Group         { return e.grp }
func (e *Engine) Stats() *stats.Tracker { return e.stats }
func (e *Engine) Config() *cmn.Config   { return e.cfg }

func (e *Engine) Start() {
	if !e.started.CompareAndSwap(false, true) {
		return
	}
	e.wg.Add(e.cfg.Raid.Workers)
	for range e.cfg.Raid.Workers {
		go e.runq.worker(&e.wg)
	}
	nlog.Infof("%s: started %d workers", e, e.cfg.Raid.Workers)
}

// Stop waits for the workers to exit; requests still in flight never complete
func (e *Engine) Stop() {
	if !e.started.CompareAndSwap(true, false) {
		return
	}
	e.runq.stop()
	e.wg.Wait()
	nlog.Infoln(e, "stopped")
}

func (e *Engine) schedule(s *SubRequest) { e.runq.push(s) }

func (*Engine) genID() string { return cmn.GenUUID() }

// Submit starts a host read; ctx cancellation aborts it
func (e *Engine) Submit(ctx context.Context, region Region, alg Algorithm, prio Priority) *Request {
	r := newRequest(ctx, e, region, alg, prio)
	e.stats.Add(stats.InflightSize, 1)
	switch {
	case alg.nested():
		r.err = NewErrInternal("%s: %s is not a host algorithm", r, alg)
	case !e.grp.inRange(region):
		r.err = NewErrInternal("%s: outside of %s (capacity %d)", r, e.grp, e.grp.Capacity())
	}
	if r.err != nil {
		r.res.Status = StatusInternal
		r.genDone = true
		nlog.Errorln(r.err)
		r.finish()
		return r
	}
	r.data = make([]byte, region.Blocks*parity.PayloadSize)
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				r.Abort()
			case <-r.done:
			}
		}()
	}
	r.generate()
	return r
}

// Read is Submit followed by Wait
func (e *Engine) Read(ctx context.Context, region Region, alg Algorithm, prio Priority) Result {
	return e.Submit(ctx, region, alg, prio).Wait()
}
