// Package parity implements the sector format (payload + checksum + lba stamp)
// and the parity codec used to certify and reconstruct RAID stripes.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package parity

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// sector layout: [ payload (512) | checksum (4) | lba stamp (4) ]
const (
	PayloadSize = 512
	MetaSize    = 8
	SectorSize  = PayloadSize + MetaSize

	cksumOff = PayloadSize
	stampOff = PayloadSize + 4
)

const stampSeed = 0x5a5a_0000

type CheckResult int

const (
	CheckOK CheckResult = iota
	CheckBadStamp
	CheckBadCksum
)

func (r CheckResult) String() string {
	switch r {
	case CheckOK:
		return "ok"
	case CheckBadStamp:
		return "bad-lba-stamp"
	default:
		return "bad-checksum"
	}
}

// Stamp returns the lba stamp expected in the sector of a given logical block
func Stamp(lba uint64) uint32 { return uint32(lba) ^ uint32(lba>>32) ^ stampSeed }

func Checksum(payload []byte) uint32 { return uint32(xxhash.Sum64(payload[:PayloadSize])) }

// Seal writes checksum and lba stamp into the sector metadata
func Seal(sector []byte, lba uint64) {
	binary.LittleEndian.PutUint32(sector[cksumOff:], Checksum(sector))
	binary.LittleEndian.PutUint32(sector[stampOff:], Stamp(lba))
}

func StoredStamp(sector []byte) uint32 { return binary.LittleEndian.Uint32(sector[stampOff:]) }
func StoredCksum(sector []byte) uint32 { return binary.LittleEndian.Uint32(sector[cksumOff:]) }

// CheckSector validates one data sector: the lba stamp always,
// the checksum only when `full` is set.
func CheckSector(sector []byte, lba uint64, full bool) CheckResult {
	if len(sector) != SectorSize {
		return CheckBadCksum
	}
	if StoredStamp(sector) != Stamp(lba) {
		return CheckBadStamp
	}
	if full && StoredCksum(sector) != Checksum(sector) {
		return CheckBadCksum
	}
	return CheckOK
}

// XOR accumulates srcs into dst (all of the same length)
func XOR(dst []byte, srcs ...[]byte) {
	for _, src := range srcs {
		for i := range dst {
			dst[i] ^= src[i]
		}
	}
}
