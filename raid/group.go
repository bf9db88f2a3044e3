// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/NVIDIA/raidio/cmn/cos"
	"github.com/NVIDIA/raidio/cmn/nlog"
	"github.com/pkg/errors"
)

// Group is a parity RAID group: Width positions, Parity of which hold
// redundancy in every stripe (rotating), ElementSize blocks per position per
// stripe.
//
// The dead-position bitmask belongs to the group owner (SetDead, SetAlive);
// the read path only ever loads it, at every decision point.
type Group struct {
	ID          string
	parked      []parkedSiots
	Stripes     uint64
	Width       int
	Parity      int
	ElementSize int
	dead        atomic.Uint64
	qmu         sync.Mutex
	quiesced    atomic.Bool
}

type parkedSiots struct {
	s    *SubRequest
	wake func()
}

func NewGroup(id string, width, nparity, elementSize int, stripes uint64) (*Group, error) {
	switch {
	case nparity < 1 || nparity > 2:
		return nil, errors.Errorf("group %s: unsupported parity count %d", id, nparity)
	case width < nparity+2 || width > cos.MaxPositions:
		return nil, errors.Errorf("group %s: invalid width %d (parity %d)", id, width, nparity)
	case elementSize < 1:
		return nil, errors.Errorf("group %s: invalid element size %d", id, elementSize)
	case stripes < 1:
		return nil, errors.Errorf("group %s: no stripes", id)
	}
	return &Group{ID: id, Width: width, Parity: nparity, ElementSize: elementSize, Stripes: stripes}, nil
}

func (g *Group) String() string {
	return fmt.Sprintf("rg[%s %d+%d e=%d]", g.ID, g.DataDisks(), g.Parity, g.ElementSize)
}

func (g *Group) DataDisks() int                    { return g.Width - g.Parity }
func (g *Group) StripeBlocks() uint64              { return uint64(g.ElementSize * g.DataDisks()) }
func (g *Group) Capacity() uint64                  { return g.Stripes * g.StripeBlocks() }
func (g *Group) Dead() cos.PosMask                 { return cos.PosMask(g.dead.Load()) }
func (g *Group) PBA(stripe uint64, row int) uint64 { return stripe*uint64(g.ElementSize) + uint64(row) }

// inRange does not compute r.End(), which may wrap
func (g *Group) inRange(r Region) bool {
	c := g.Capacity()
	return r.Blocks >= 0 && r.LBA <= c && uint64(r.Blocks) <= c-r.LBA
}

func (g *Group) SetDead(pos int) {
	cos.Assertf(pos >= 0 && pos < g.Width, "%s: invalid position %d", g, pos)
	for {
		old := g.dead.Load()
		if g.dead.CompareAndSwap(old, uint64(cos.PosMask(old).Add(pos))) {
			break
		}
	}
	nlog.Warningf("%s: position %d is dead, dead %s", g, pos, g.Dead())
}

func (g *Group) SetAlive(pos int) {
	cos.Assertf(pos >= 0 && pos < g.Width, "%s: invalid position %d", g, pos)
	for {
		old := g.dead.Load()
		if g.dead.CompareAndSwap(old, uint64(cos.PosMask(old).Del(pos))) {
			break
		}
	}
	nlog.Infof("%s: position %d is back, dead %s", g, pos, g.Dead())
}

//
// geometry
//

// ParityPos returns the redundancy positions of a stripe, P first
func (g *Group) ParityPos(stripe uint64) []int {
	p := g.Width - 1 - int(stripe%uint64(g.Width))
	if g.Parity == 1 {
		return []int{p}
	}
	return []int{p, (p + 1) % g.Width}
}

func (g *Group) parityMask(stripe uint64) (m cos.PosMask) {
	for _, pos := range g.ParityPos(stripe) {
		m = m.Add(pos)
	}
	return m
}

// DataPos maps data index [0, DataDisks) to a position
func (g *Group) DataPos(stripe uint64, idx int) int {
	pp := g.ParityPos(stripe)
	return (pp[len(pp)-1] + 1 + idx) % g.Width
}

// ShardIndex maps a position to its codec shard: data [0, DataDisks), then parity
func (g *Group) ShardIndex(stripe uint64, pos int) int {
	pp := g.ParityPos(stripe)
	for k, p := range pp {
		if p == pos {
			return g.DataDisks() + k
		}
	}
	return (pos - pp[len(pp)-1] - 1 + g.Width) % g.Width
}

// Locate returns stripe, data index and row of a logical block
func (g *Group) Locate(lba uint64) (stripe uint64, idx, row int) {
	sb := g.StripeBlocks()
	stripe = lba / sb
	off := int(lba % sb)
	return stripe, off / g.ElementSize, off % g.ElementSize
}

func (g *Group) LBA(stripe uint64, idx, row int) uint64 {
	return stripe*g.StripeBlocks() + uint64(idx*g.ElementSize+row)
}

//
// quiesce
//

func (g *Group) Quiesce() {
	g.qmu.Lock()
	g.quiesced.Store(true)
	g.qmu.Unlock()
	nlog.Infoln(g, "quiesced")
}

// Unquiesce releases all parked siots
func (g *Group) Unquiesce() {
	g.qmu.Lock()
	g.quiesced.Store(false)
	parked := g.parked
	g.parked = nil
	g.qmu.Unlock()
	nlog.Infof("%s: unquiesced, releasing %d", g, len(parked))
	for _, p := range parked {
		p.wake()
	}
}

func (g *Group) Quiesced() bool { return g.quiesced.Load() }

// park returns false if the group is no longer quiesced or the request is
// aborted. Abort sets its flag before unpark takes qmu: either unpark finds
// the entry or the check below sees the flag.
func (g *Group) park(s *SubRequest, wake func()) bool {
	g.qmu.Lock()
	defer g.qmu.Unlock()
	if !g.quiesced.Load() || s.isAborted() {
		return false
	}
	g.parked = append(g.parked, parkedSiots{s: s, wake: wake})
	return true
}

// unpark releases the parked siots of an aborted request
func (g *Group) unpark(r *Request) (n int) {
	var wake []func()
	g.qmu.Lock()
	kept := g.parked[:0]
	for _, p := range g.parked {
		if p.s.req == r {
			wake = append(wake, p.wake)
		} else {
			kept = append(kept, p)
		}
	}
	g.parked = kept
	g.qmu.Unlock()
	for _, w := range wake {
		w()
	}
	return len(wake)
}
