// Package drive simulates the drives of a RAID group: sector stores per
// position, asynchronous completions, and fault injection.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package drive

import (
	"encoding/binary"

	"github.com/NVIDIA/raidio/cmn/nlog"
	"github.com/NVIDIA/raidio/dbdriver"
	"github.com/NVIDIA/raidio/parity"
	"github.com/NVIDIA/raidio/raid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Geometry is persisted with the sectors so that a reopened database is
// formatted only once
type Geometry struct {
	Stripes     uint64 `json:"stripes"`
	Width       int    `json:"width"`
	Parity      int    `json:"parity"`
	ElementSize int    `json:"element_size"`
}

func geometry(g *raid.Group) Geometry {
	return Geometry{Stripes: g.Stripes, Width: g.Width, Parity: g.Parity, ElementSize: g.ElementSize}
}

// Pattern fills dst with the reference payload of a logical block
func Pattern(lba uint64, dst []byte) {
	x := lba*0x9e3779b97f4a7c15 + 1
	for i := 0; i+8 <= parity.PayloadSize; i += 8 {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		binary.LittleEndian.PutUint64(dst[i:], x)
	}
}

// Expected returns the reference payloads of a region
func Expected(region raid.Region) []byte {
	out := make([]byte, region.Blocks*parity.PayloadSize)
	for i := range region.Blocks {
		Pattern(region.LBA+uint64(i), out[i*parity.PayloadSize:])
	}
	return out
}

// Formatted reports whether the store already holds this geometry
func (a *Array) Formatted(g *raid.Group) bool {
	var geo Geometry
	if err := a.db.Get(metaCollection, "geometry", &geo); err != nil {
		if !dbdriver.IsErrNotFound(err) {
			nlog.Warningln(a, err)
		}
		return false
	}
	return geo == geometry(g)
}

// Format writes sealed reference data and parity for every stripe,
// positions in parallel
func (a *Array) Format(g *raid.Group, codec *parity.Codec) error {
	if g.Width != a.width {
		return errors.Errorf("%s: cannot format %s", a, g)
	}
	for stripe := range g.Stripes {
		rows := make([][][]byte, g.ElementSize)
		for row := range rows {
			shards := make([][]byte, g.Width)
			for sh := range shards {
				shards[sh] = make([]byte, parity.SectorSize)
			}
			for idx := range g.DataDisks() {
				lba := g.LBA(stripe, idx, row)
				Pattern(lba, shards[idx])
				parity.Seal(shards[idx], lba)
			}
			if err := codec.Encode(shards); err != nil {
				return errors.Wrapf(err, "stripe %d row %d", stripe, row)
			}
			rows[row] = shards
		}
		var wg errgroup.Group
		wg.SetLimit(g.Width)
		for pos := range g.Width {
			sh := g.ShardIndex(stripe, pos)
			wg.Go(func() error {
				for row, shards := range rows {
					if err := a.WriteSector(pos, g.PBA(stripe, row), shards[sh]); err != nil {
						return errors.Wrapf(err, "pos %d stripe %d", pos, stripe)
					}
				}
				return nil
			})
		}
		if err := wg.Wait(); err != nil {
			return err
		}
	}
	if err := a.db.Set(metaCollection, "geometry", geometry(g)); err != nil {
		return err
	}
	nlog.Infof("%s: formatted %s, %d stripes", a, g, g.Stripes)
	return nil
}
