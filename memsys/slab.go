// Package memsys provides sector buffer allocation for the RAID read path:
// a slab of fixed-size reusable buffers fronted by a budgeted pool that
// grants, defers, or refuses requests.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

import (
	"sync"
	"sync/atomic"

	"github.com/NVIDIA/raidio/cmn/debug"
	"github.com/NVIDIA/raidio/cmn/nlog"
)

const (
	minDepth = 4    // depth when idle
	maxDepth = 4096 // exceeding warrants reallocation
)

var deadBEEF = []byte("DEADBEEF")

// Slab is a two-ring (get/put) cache of equal-size buffers
type Slab struct {
	tag     string
	get     [][]byte
	put     [][]byte
	bufSize int
	pos     int
	depth   int
	muget   sync.Mutex
	muput   sync.Mutex
	stats   struct {
		hits  atomic.Int64
		grown atomic.Int64
	}
}

func newSlab(tag string, bufSize, depth int) *Slab {
	depth = max(min(depth, maxDepth), minDepth)
	return &Slab{
		tag:     tag,
		bufSize: bufSize,
		depth:   depth,
		get:     make([][]byte, 0, depth),
		put:     make([][]byte, 0, depth),
	}
}

func (s *Slab) Size() int   { return s.bufSize }
func (s *Slab) Tag() string { return s.tag }

func (s *Slab) Alloc() (buf []byte) {
	s.muget.Lock()
	buf = s._alloc()
	s.muget.Unlock()
	return
}

func (s *Slab) Free(bufs ...[]byte) {
	s.muput.Lock()
	for _, buf := range bufs {
		if len(s.put) >= s.depth {
			break // let the GC have the rest
		}
		debug.Assert(len(buf) == s.bufSize)
		debug.Func(func() {
			for i := 0; i < len(buf); i += len(deadBEEF) {
				copy(buf[i:], deadBEEF)
			}
		})
		s.put = append(s.put, buf)
	}
	s.muput.Unlock()
}

func (s *Slab) _alloc() (buf []byte) {
	if len(s.get) > s.pos { // fast path
		buf = s.get[s.pos]
		s.get[s.pos] = nil
		s.pos++
		s.stats.hits.Add(1)
		return
	}
	return s._allocSlow()
}

func (s *Slab) _allocSlow() (buf []byte) {
	s.muput.Lock()
	if cnt := minDepth - len(s.put); cnt > 0 {
		s.grow(cnt)
	}
	s.get, s.put = s.put, s.get[:0]
	s.muput.Unlock()

	s.pos = 0
	buf = s.get[s.pos]
	s.get[s.pos] = nil
	s.pos++
	s.stats.hits.Add(1)
	return
}

// under muput
func (s *Slab) grow(cnt int) {
	if nlog.V(4) {
		nlog.Infof("%s: grow by %d => %d", s.tag, cnt, len(s.put)+cnt)
	}
	s.stats.grown.Add(int64(cnt))
	for ; cnt > 0; cnt-- {
		s.put = append(s.put, make([]byte, s.bufSize))
	}
}

// cached reports the number of free buffers currently held
func (s *Slab) cached() int {
	s.muget.Lock()
	n := len(s.get) - s.pos
	s.muget.Unlock()
	s.muput.Lock()
	n += len(s.put)
	s.muput.Unlock()
	return n
}
