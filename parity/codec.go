/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package parity

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"
)

// Codec computes and uses redundancy over one row of sectors: shards
// [0, data) are data sectors, [data, data+parity) are redundancy sectors.
// With a single parity shard the redundancy is a plain XOR (RAID-5);
// with two it is Reed-Solomon P+Q (RAID-6).
type Codec struct {
	enc    reedsolomon.Encoder
	data   int
	parity int
}

func NewCodec(data, parity int) (*Codec, error) {
	if data < 1 || parity < 1 || parity > 2 {
		return nil, errors.Errorf("unsupported geometry %d+%d", data, parity)
	}
	enc, err := reedsolomon.New(data, parity, reedsolomon.WithFastOneParityMatrix())
	if err != nil {
		return nil, errors.Wrapf(err, "new codec %d+%d", data, parity)
	}
	return &Codec{enc: enc, data: data, parity: parity}, nil
}

func (c *Codec) String() string { return fmt.Sprintf("codec[%d+%d]", c.data, c.parity) }

func (c *Codec) DataShards() int   { return c.data }
func (c *Codec) ParityShards() int { return c.parity }

// Encode fills the parity shards from the data shards
func (c *Codec) Encode(shards [][]byte) error {
	return c.enc.Encode(shards)
}

// Verify reports whether parity is coherent with data
func (c *Codec) Verify(shards [][]byte) (bool, error) {
	return c.enc.Verify(shards)
}

// Reconstruct recomputes nil (or zero-length) shards in place; up to
// `parity` shards may be missing. Shards with zero length and enough
// capacity are reused.
func (c *Codec) Reconstruct(shards [][]byte) error {
	if len(shards) != c.data+c.parity {
		return errors.Errorf("%s: expecting %d shards, got %d", c, c.data+c.parity, len(shards))
	}
	var missing int
	for _, sh := range shards {
		if len(sh) == 0 {
			missing++
		}
	}
	if missing > c.parity {
		return errors.Errorf("%s: %d missing shards exceed redundancy", c, missing)
	}
	if missing == 0 {
		return nil
	}
	return c.enc.Reconstruct(shards)
}

// Check validates one data sector (see CheckSector)
func (*Codec) Check(sector []byte, lba uint64, full bool) CheckResult {
	return CheckSector(sector, lba, full)
}
