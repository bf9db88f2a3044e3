// Package memsys provides sector buffer allocation for the RAID read path:
// a slab of fixed-size reusable buffers fronted by a budgeted pool that
// grants, defers, or refuses requests.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/NVIDIA/raidio/cmn/cos"
	"github.com/NVIDIA/raidio/cmn/debug"
	"github.com/NVIDIA/raidio/cmn/nlog"
)

type AllocStatus int

const (
	AllocImmediate AllocStatus = iota // granted; proceed synchronously
	AllocPending                      // deferred; callback delivers the pages
	AllocError                        // can never be granted
)

func (s AllocStatus) String() string {
	switch s {
	case AllocImmediate:
		return "immediate"
	case AllocPending:
		return "pending"
	default:
		return "error"
	}
}

type (
	// Pages is one granted allocation; returned to its pool exactly once
	Pages struct {
		Bufs [][]byte
		pool *Pool
		done atomic.Bool
	}
	waiter struct {
		cb func(*Pages)
		n  int
	}
	Stats struct {
		Used     int   `json:"used"`
		Max      int   `json:"max"`
		Cached   int   `json:"cached"`
		Waiters  int   `json:"waiters"`
		Granted  int64 `json:"granted"`
		Deferred int64 `json:"deferred"`
		Refused  int64 `json:"refused"`
		Dropped  int64 `json:"dropped"`
	}
	// Pool enforces a budget of `max` buffers on top of a slab and serves
	// deferred requests in FIFO order as buffers come back.
	Pool struct {
		slab    *Slab
		name    string
		waiters []waiter
		max     int
		used    int
		mu      sync.Mutex
		stats   struct {
			granted  atomic.Int64
			deferred atomic.Int64
			refused  atomic.Int64
			dropped  atomic.Int64
		}
	}
)

func NewPool(name string, bufSize, maxBufs, depth int) *Pool {
	cos.Assertf(bufSize > 0 && maxBufs > 0, "%s: invalid pool geometry (%d, %d)", name, bufSize, maxBufs)
	return &Pool{
		name: name,
		max:  maxBufs,
		slab: newSlab(fmt.Sprintf("%s-%dB", name, bufSize), bufSize, depth),
	}
}

func (p *Pool) String() string { return p.name }
func (p *Pool) BufSize() int   { return p.slab.Size() }
func (p *Pool) Max() int       { return p.max }

// Request asks for n buffers. With AllocPending the callback runs exactly
// once, later, on the goroutine that frees enough buffers.
func (p *Pool) Request(n int, cb func(*Pages)) (*Pages, AllocStatus) {
	if n < 0 || n > p.max {
		p.stats.refused.Add(1)
		nlog.Errorf("%s: cannot allocate %d buffers (max %d)", p, n, p.max)
		return nil, AllocError
	}
	p.mu.Lock()
	if len(p.waiters) == 0 && p.used+n <= p.max {
		p.used += n
		p.mu.Unlock()
		p.stats.granted.Add(1)
		return p.alloc(n), AllocImmediate
	}
	debug.Assert(cb != nil)
	p.waiters = append(p.waiters, waiter{n: n, cb: cb})
	p.mu.Unlock()
	p.stats.deferred.Add(1)
	if nlog.V(4) {
		nlog.Infof("%s: deferred %d buffers, pressure %s", p, n, PressureText(p.Pressure()))
	}
	return nil, AllocPending
}

// Free returns buffers for reuse and serves waiters.
func (p *Pool) Free(pg *Pages) {
	if pg == nil || !pg.release(p) {
		return
	}
	p.slab.Free(pg.Bufs...)
	p.credit(len(pg.Bufs))
	pg.Bufs = nil
}

// Drop gives the budget back without recycling the buffers: for buffers
// that may still be written by an in-flight read.
func (p *Pool) Drop(pg *Pages) {
	if pg == nil || !pg.release(p) {
		return
	}
	p.stats.dropped.Add(1)
	p.credit(len(pg.Bufs))
	pg.Bufs = nil
}

func (p *Pool) Stats() (s Stats) {
	p.mu.Lock()
	s.Used, s.Waiters = p.used, len(p.waiters)
	p.mu.Unlock()
	s.Max = p.max
	s.Cached = p.slab.cached()
	s.Granted = p.stats.granted.Load()
	s.Deferred = p.stats.deferred.Load()
	s.Refused = p.stats.refused.Load()
	s.Dropped = p.stats.dropped.Load()
	return
}

func (p *Pool) alloc(n int) *Pages {
	pg := &Pages{pool: p, Bufs: make([][]byte, n)}
	for i := range pg.Bufs {
		pg.Bufs[i] = p.slab.Alloc()
	}
	return pg
}

func (p *Pool) credit(n int) {
	var ready []waiter
	p.mu.Lock()
	p.used -= n
	debug.Assert(p.used >= 0)
	for len(p.waiters) > 0 && p.used+p.waiters[0].n <= p.max {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.used += w.n
		ready = append(ready, w)
	}
	p.mu.Unlock()
	for _, w := range ready {
		p.stats.granted.Add(1)
		w.cb(p.alloc(w.n))
	}
}

func (pg *Pages) Len() int { return len(pg.Bufs) }

func (pg *Pages) release(p *Pool) bool {
	cos.AssertMsg(pg.pool == p, "pages returned to a foreign pool")
	if !pg.done.CompareAndSwap(false, true) {
		debug.Assert(false, "double free")
		return false
	}
	return true
}
