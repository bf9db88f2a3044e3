// Package cos provides common low-level types and utilities for all raidio packages
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"math/bits"
	"strconv"
	"strings"
)

// PosMask is a bitmask of RAID group positions (bit i <=> position i)
type PosMask uint64

const MaxPositions = 64

func PosBit(pos int) PosMask { return PosMask(1) << uint(pos) }

func (m PosMask) Has(pos int) bool        { return m&PosBit(pos) != 0 }
func (m PosMask) Add(pos int) PosMask     { return m | PosBit(pos) }
func (m PosMask) Del(pos int) PosMask     { return m &^ PosBit(pos) }
func (m PosMask) Count() int              { return bits.OnesCount64(uint64(m)) }
func (m PosMask) Overlaps(o PosMask) bool { return m&o != 0 }

// Positions returns set bits in ascending order
func (m PosMask) Positions() (out []int) {
	for v := uint64(m); v != 0; v &= v - 1 {
		out = append(out, bits.TrailingZeros64(v))
	}
	return out
}

func (m PosMask) String() string {
	if m == 0 {
		return "[]"
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, pos := range m.Positions() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(pos))
	}
	sb.WriteByte(']')
	return sb.String()
}
