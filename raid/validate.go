// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

import (
	"math"
	"slices"

	"github.com/NVIDIA/raidio/cmn/nlog"
	"github.com/NVIDIA/raidio/parity"
	"github.com/NVIDIA/raidio/stats"
)

// checkSectors validates the data sectors of a host read and returns the
// first failure; it never modifies the buffers
func (s *SubRequest) checkSectors(full bool) (uint64, parity.CheckResult) {
	g := s.grp()
	for _, e := range s.entries {
		for i, sec := range e.sectors {
			lba := g.LBA(s.stripe, e.shard, e.row0+i)
			if res := s.eng.codec.Check(sec, lba, full); res != parity.CheckOK {
				return lba, res
			}
		}
	}
	return 0, parity.CheckOK
}

// copyOut gathers validated payloads into region order
func (s *SubRequest) copyOut() {
	s.data = make([]byte, s.region.Blocks*parity.PayloadSize)
	for _, e := range s.entries {
		for i, sec := range e.sectors {
			off := s.regionOff(e.shard, e.row0+i) * parity.PayloadSize
			copy(s.data[off:off+parity.PayloadSize], sec[:parity.PayloadSize])
		}
	}
}

type rowShards struct {
	shards [][]byte
	erased []int // shard indices
}

// rebuild runs once all reads of a nested siots have completed. For every
// row of the plan it treats dead positions (and, unless strict, unreadable
// or invalid sectors) as erasures, reconstructs rows within the group's
// redundancy, and certifies every reconstructed data sector by validating
// its checksum and stamp. Strict mode (degraded read) fails on any
// invalid surviving sector instead.
func (s *SubRequest) rebuild(strict bool) stateStatus {
	if st, ok := s.boundary(); ok {
		return st
	}
	var (
		g       = s.grp()
		k       = g.DataDisks()
		byShard = make([]*fruIO, g.Width)
		bad     = uint64(math.MaxUint64)
		nrec    int
	)
	for _, e := range s.entries {
		byShard[e.shard] = e
	}
	s.data = make([]byte, s.region.Blocks*parity.PayloadSize)
	for row := s.plan.row0; row < s.plan.row1; row++ {
		rs := rowShards{shards: make([][]byte, g.Width)}
		for sh, e := range byShard {
			switch {
			case e == nil:
				rs.erased = append(rs.erased, sh)
			case e.status == DriveMediaError && row-e.row0 >= e.bad:
				rs.erased = append(rs.erased, sh)
			case sh < k && s.eng.codec.Check(e.sectors[row-e.row0], g.LBA(s.stripe, sh, row), true) != parity.CheckOK:
				if strict {
					bad = min(bad, g.LBA(s.stripe, sh, row))
				}
				rs.erased = append(rs.erased, sh)
			default:
				rs.shards[sh] = e.sectors[row-e.row0]
			}
		}
		if strict && bad != math.MaxUint64 {
			break
		}
		good, n := s.rebuildRow(&rs, row)
		nrec += n
		for sh := range k {
			lba := g.LBA(s.stripe, sh, row)
			if !s.region.contains(lba) {
				continue
			}
			if !good && slices.Contains(rs.erased, sh) {
				// erasures are in shard order: the first one is the row's lowest bad block
				bad = min(bad, g.LBA(s.stripe, rs.erased[0], row))
				continue
			}
			off := s.regionOff(sh, row) * parity.PayloadSize
			copy(s.data[off:off+parity.PayloadSize], rs.shards[sh][:parity.PayloadSize])
		}
	}
	if nrec > 0 {
		s.eng.stats.Add(stats.ReconstructCount, int64(nrec))
	}
	if bad != math.MaxUint64 {
		s.data = nil
		return s.finishMedia(bad)
	}
	return s.finish(StatusSuccess)
}

// rebuildRow returns false when the row's requested data cannot be
// certified; the number of reconstructed data sectors otherwise
func (s *SubRequest) rebuildRow(rs *rowShards, row int) (bool, int) {
	var (
		g = s.grp()
		k = g.DataDisks()
	)
	if len(rs.erased) == 0 {
		if ok, err := s.eng.codec.Verify(rs.shards); err == nil && !ok {
			s.eng.stats.Inc(stats.MismatchCount)
			nlog.Warningf("%s: row %d: data valid, parity incoherent", s, row)
		}
		return true, 0
	}
	if len(rs.erased) > g.Parity {
		return false, 0
	}
	// try the erasures as found, then (with redundancy to spare) also
	// distrust each surviving parity sector in turn: parity carries no stamp
	attempts := [][]int{rs.erased}
	for sh := k; sh < g.Width && len(rs.erased) < g.Parity; sh++ {
		if rs.shards[sh] != nil {
			attempts = append(attempts, append(append([]int{}, rs.erased...), sh))
		}
	}
	for _, erased := range attempts {
		shards := make([][]byte, len(rs.shards))
		copy(shards, rs.shards)
		for _, sh := range erased {
			shards[sh] = nil
		}
		if err := s.eng.codec.Reconstruct(shards); err != nil {
			nlog.Errorf("%s: row %d: %v", s, row, err)
			return false, 0
		}
		n, ok := 0, true
		for _, sh := range erased {
			if sh >= k {
				continue
			}
			if s.eng.codec.Check(shards[sh], g.LBA(s.stripe, sh, row), true) != parity.CheckOK {
				ok = false
				break
			}
			n++
		}
		if ok {
			rs.shards = shards
			return true, n
		}
	}
	return false, 0
}
