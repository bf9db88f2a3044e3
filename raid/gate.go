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

	"github.com/NVIDIA/raidio/cmn/debug"
	"golang.org/x/sync/semaphore"
)

// stripeGates serializes recovery-verify per stripe: a weight-1 semaphore
// per stripe, created on demand and dropped with its last user
type (
	stripeGate struct {
		sem  *semaphore.Weighted
		refs int
	}
	stripeGates struct {
		m  map[uint64]*stripeGate
		mu sync.Mutex
	}
)

func newStripeGates() *stripeGates {
	return &stripeGates{m: make(map[uint64]*stripeGate, 16)}
}

func (sg *stripeGates) acquire(ctx context.Context, stripe uint64) error {
	sg.mu.Lock()
	g, ok := sg.m[stripe]
	if !ok {
		g = &stripeGate{sem: semaphore.NewWeighted(1)}
		sg.m[stripe] = g
	}
	g.refs++
	sg.mu.Unlock()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		sg.put(stripe, g)
		return err
	}
	return nil
}

func (sg *stripeGates) release(stripe uint64) {
	sg.mu.Lock()
	g, ok := sg.m[stripe]
	debug.Assert(ok, stripe)
	sg.mu.Unlock()
	g.sem.Release(1)
	sg.put(stripe, g)
}

func (sg *stripeGates) put(stripe uint64, g *stripeGate) {
	sg.mu.Lock()
	g.refs--
	if g.refs == 0 {
		delete(sg.m, stripe)
	}
	sg.mu.Unlock()
}

func (sg *stripeGates) len() int {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	return len(sg.m)
}
