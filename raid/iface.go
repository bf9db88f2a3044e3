// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

import (
	"fmt"

	"github.com/NVIDIA/raidio/memsys"
	"github.com/NVIDIA/raidio/parity"
)

type (
	// ReadReq reads len(Sectors) consecutive blocks of one position
	// starting at PBA, each into a parity.SectorSize buffer.
	ReadReq struct {
		Sectors [][]byte
		Tag     string // siots name, for traces
		PBA     uint64
		Pos     int
		Prio    Priority
	}
	// Completion of a ReadReq. For DriveMediaError, BadBlock is the index of
	// the first unreadable sector; the ones that follow carry no data.
	Completion struct {
		BadBlock int
		Status   DriveStatus
	}

	// Drives is the drive transport. Read must not invoke cb synchronously;
	// an error return means the read was not issued and cb will never run.
	Drives interface {
		Read(r *ReadReq, cb func(Completion)) error
	}

	// Allocator grants sector buffers; see memsys.Pool
	Allocator interface {
		Request(n int, cb func(*memsys.Pages)) (*memsys.Pages, memsys.AllocStatus)
		Free(pg *memsys.Pages)
		Drop(pg *memsys.Pages)
	}

	// Codec validates sectors and reconstructs rows; see parity.Codec
	Codec interface {
		Check(sector []byte, lba uint64, full bool) parity.CheckResult
		Reconstruct(shards [][]byte) error
		Verify(shards [][]byte) (bool, error)
	}
)

// interface guard
var (
	_ Allocator = (*memsys.Pool)(nil)
	_ Codec     = (*parity.Codec)(nil)
)

func (r *ReadReq) String() string {
	return fmt.Sprintf("read[%s pos=%d pba=%d n=%d]", r.Tag, r.Pos, r.PBA, len(r.Sectors))
}
