// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

import (
	"fmt"

	"github.com/NVIDIA/raidio/cmn/cos"
)

type (
	// plan is computed before allocation and checked again at dispatch
	plan struct {
		entries int // tracking entries (= drive reads = waitCount)
		sectors int // sector buffers
		row0    int // rows [row0, row1) read by every entry of a nested siots
		row1    int
	}
	// extent is the part of a region stored on one data position
	extent struct {
		idx  int // data index within the stripe
		pos  int
		row0 int
		row1 int
	}
)

func (p *plan) String() string {
	return fmt.Sprintf("plan[e=%d s=%d rows=%d:%d]", p.entries, p.sectors, p.row0, p.row1)
}

// region offset (in blocks) from the beginning of the stripe
func (s *SubRequest) stripeOff() int {
	return int(s.region.LBA - s.stripe*s.grp().StripeBlocks())
}

func (s *SubRequest) extents() []extent {
	var (
		g    = s.grp()
		es   = g.ElementSize
		off0 = s.stripeOff()
		off1 = off0 + s.region.Blocks
		out  = make([]extent, 0, g.DataDisks())
	)
	for idx := off0 / es; idx*es < off1; idx++ {
		lo, hi := max(off0, idx*es), min(off1, (idx+1)*es)
		out = append(out, extent{idx: idx, pos: g.DataPos(s.stripe, idx), row0: lo - idx*es, row1: hi - idx*es})
	}
	return out
}

// readMask returns the data positions holding the region
func (s *SubRequest) readMask() (m cos.PosMask) {
	for _, x := range s.extents() {
		m = m.Add(x.pos)
	}
	return m
}

// rowSpan covers every row the region touches on any position
func (s *SubRequest) rowSpan() (row0, row1 int) {
	xs := s.extents()
	row0, row1 = xs[0].row0, xs[0].row1
	for _, x := range xs[1:] {
		row0, row1 = min(row0, x.row0), max(row1, x.row1)
	}
	return row0, row1
}

// regionOff returns the block offset, within the region, of a data sector
func (s *SubRequest) regionOff(idx, row int) int {
	return idx*s.grp().ElementSize + row - s.stripeOff()
}

// planRead: one entry per data position of the region
func (s *SubRequest) planRead() (p plan) {
	for _, x := range s.extents() {
		p.entries++
		p.sectors += x.row1 - x.row0
	}
	return p
}

// planRows: every live position, whole rows
func (s *SubRequest) planRows(dead cos.PosMask) (p plan) {
	p.row0, p.row1 = s.rowSpan()
	p.entries = s.grp().Width - dead.Count()
	p.sectors = p.entries * (p.row1 - p.row0)
	return p
}
