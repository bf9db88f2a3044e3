// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

import (
	"fmt"

	"github.com/NVIDIA/raidio/cmn/nlog"
	"github.com/NVIDIA/raidio/stats"
	"github.com/NVIDIA/raidio/tracing"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// fruIO tracks one drive read. Completion fields are written by the drive
// callback and read by the owner only after all callbacks have signaled.
type fruIO struct {
	sectors [][]byte
	pba     uint64
	pos     int
	shard   int // codec shard (data index for data positions)
	row0    int
	bad     int // first unreadable sector on media error
	status  DriveStatus
	done    bool
}

func (e *fruIO) String() string {
	if !e.done {
		return fmt.Sprintf("fru[pos=%d pba=%d n=%d pending]", e.pos, e.pba, len(e.sectors))
	}
	if e.status == DriveMediaError {
		return fmt.Sprintf("fru[pos=%d pba=%d n=%d %s@%d]", e.pos, e.pba, len(e.sectors), e.status, e.bad)
	}
	return fmt.Sprintf("fru[pos=%d pba=%d n=%d %s]", e.pos, e.pba, len(e.sectors), e.status)
}

// setupFrus builds tracking entries and hands out the allocated buffers
func (s *SubRequest) setupFrus() error {
	var (
		g    = s.grp()
		bufs = s.pages.Bufs
		used int
	)
	take := func(n int) [][]byte {
		if used+n > len(bufs) {
			return nil
		}
		b := bufs[used : used+n : used+n]
		used += n
		return b
	}
	s.entries = s.entries[:0]
	if s.alg.nested() {
		for pos := range g.Width {
			if s.deadSnap.Has(pos) {
				continue
			}
			n := s.plan.row1 - s.plan.row0
			s.entries = append(s.entries, &fruIO{
				pos:     pos,
				shard:   g.ShardIndex(s.stripe, pos),
				row0:    s.plan.row0,
				pba:     g.PBA(s.stripe, s.plan.row0),
				sectors: take(n),
			})
		}
	} else {
		for _, x := range s.extents() {
			s.entries = append(s.entries, &fruIO{
				pos:     x.pos,
				shard:   x.idx,
				row0:    x.row0,
				pba:     g.PBA(s.stripe, x.row0),
				sectors: take(x.row1 - x.row0),
			})
		}
	}
	if len(s.entries) != s.plan.entries {
		return errors.Errorf("%d tracking entries, %s", len(s.entries), &s.plan)
	}
	if used != len(bufs) || used != s.plan.sectors {
		return errors.Errorf("%d/%d sector buffers used, %s", used, len(bufs), &s.plan)
	}
	for _, e := range s.entries {
		if e.sectors == nil {
			return errors.Errorf("out of buffers at %s, %s", e, &s.plan)
		}
	}
	s.waitCount = len(s.entries)
	return nil
}

// sendChain issues all tracking entries. The caller has armed the siots
// for len(s.entries) completions.
func (s *SubRequest) sendChain() error {
	_, span := s.eng.tracer.Start(s.ctx, "fru.send-chain", trace.WithAttributes(
		attribute.String("siots", s.name),
		attribute.Int("entries", len(s.entries)),
		attribute.Int("sectors", s.plan.sectors),
	))
	defer span.End()
	if s.eng.cfg.Trace.Frus {
		nlog.Infof("%s: send chain %d", s, len(s.entries))
	}
	for i, e := range s.entries {
		r := &ReadReq{Sectors: e.sectors, PBA: e.pba, Pos: e.pos, Prio: s.prio, Tag: s.name}
		if err := s.eng.drives.Read(r, func(c Completion) { s.fruDone(e, c) }); err != nil {
			err = errors.Wrapf(err, "issue %d/%d (%s)", i+1, len(s.entries), r)
			tracing.SetError(span, err)
			return err
		}
	}
	return nil
}

func (s *SubRequest) fruDone(e *fruIO, c Completion) {
	e.status, e.bad, e.done = c.Status, c.BadBlock, true
	s.eng.stats.IncWith(stats.FruCount, prometheus.Labels{stats.LabelStatus: c.Status.String()})
	if s.eng.cfg.Trace.Frus {
		nlog.Infof("%s: %s", s.name, e)
	}
	s.signal()
}
