// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

import (
	"sync"
)

// runQueue holds runnable siots, highest priority first, FIFO within a
// priority. Unbounded: completions and nested spawns never block.
type runQueue struct {
	cond    *sync.Cond
	q       [numPrio][]*SubRequest
	mu      sync.Mutex
	n       int
	stopped bool
}

func newRunQueue() *runQueue {
	rq := &runQueue{}
	rq.cond = sync.NewCond(&rq.mu)
	return rq
}

func (rq *runQueue) push(s *SubRequest) {
	p := min(int(s.prio), numPrio-1)
	rq.mu.Lock()
	rq.q[p] = append(rq.q[p], s)
	rq.n++
	rq.mu.Unlock()
	rq.cond.Signal()
}

// pop blocks until a siots is runnable; false once stopped
func (rq *runQueue) pop() (*SubRequest, bool) {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	for rq.n == 0 && !rq.stopped {
		rq.cond.Wait()
	}
	if rq.stopped {
		return nil, false
	}
	for p := numPrio - 1; p >= 0; p-- {
		if len(rq.q[p]) > 0 {
			s := rq.q[p][0]
			rq.q[p][0] = nil
			rq.q[p] = rq.q[p][1:]
			rq.n--
			return s, true
		}
	}
	return nil, false
}

func (rq *runQueue) stop() {
	rq.mu.Lock()
	rq.stopped = true
	rq.mu.Unlock()
	rq.cond.Broadcast()
}

func (rq *runQueue) worker(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		s, ok := rq.pop()
		if !ok {
			return
		}
		s.run()
	}
}
