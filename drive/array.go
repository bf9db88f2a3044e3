// Package drive simulates the drives of a RAID group: sector stores per
// position, asynchronous completions, and fault injection.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package drive

import (
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NVIDIA/raidio/cmn/cos"
	"github.com/NVIDIA/raidio/cmn/nlog"
	"github.com/NVIDIA/raidio/dbdriver"
	"github.com/NVIDIA/raidio/parity"
	"github.com/NVIDIA/raidio/raid"
	"github.com/pkg/errors"
)

const metaCollection = "meta"

type (
	// Record of an issued read
	Record struct {
		Tag    string
		PBA    uint64
		Pos    int
		Blocks int
		Prio   raid.Priority
	}
	// Array implements raid.Drives on top of a dbdriver (one collection per position)
	Array struct {
		db      dbdriver.Driver
		onRead  func(r *raid.ReadReq)
		faults  []*Fault
		reads   []Record
		width   int
		latency time.Duration
		failAt  int // fail the n-th next issue
		mu      sync.Mutex
		dead    cos.PosMask
		issued  atomic.Int64
	}
)

// interface guard
var _ raid.Drives = (*Array)(nil)

func NewArray(width int, db dbdriver.Driver) *Array {
	cos.Assertf(width > 0 && width <= cos.MaxPositions, "invalid width %d", width)
	return &Array{width: width, db: db}
}

func (a *Array) String() string { return fmt.Sprintf("drives[%d dead=%s]", a.width, a.Dead()) }

func (a *Array) Close() error { return a.db.Close() }

func collection(pos int) string { return fmt.Sprintf("pos.%02d", pos) }
func key(pba uint64) string     { return fmt.Sprintf("%016x", pba) }

//
// admin: liveness, faults, hooks
//

// Kill makes every read of the position complete Dead
func (a *Array) Kill(pos int) {
	a.mu.Lock()
	a.dead = a.dead.Add(pos)
	a.mu.Unlock()
}

func (a *Array) Revive(pos int) {
	a.mu.Lock()
	a.dead = a.dead.Del(pos)
	a.mu.Unlock()
}

func (a *Array) Dead() cos.PosMask {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dead
}

func (a *Array) Inject(f *Fault) {
	cos.Assertf(f.Pos >= 0 && f.Pos < a.width, "invalid fault position %d", f.Pos)
	a.mu.Lock()
	a.faults = append(a.faults, f)
	a.mu.Unlock()
}

func (a *Array) ClearFaults() {
	a.mu.Lock()
	a.faults = nil
	a.mu.Unlock()
}

func (a *Array) SetLatency(d time.Duration) {
	a.mu.Lock()
	a.latency = d
	a.mu.Unlock()
}

// OnRead installs a hook that runs on the completion goroutine before
// the completion is delivered
func (a *Array) OnRead(fn func(r *raid.ReadReq)) {
	a.mu.Lock()
	a.onRead = fn
	a.mu.Unlock()
}

// FailIssue makes the n-th next Read return an error (n >= 1)
func (a *Array) FailIssue(n int) {
	a.mu.Lock()
	a.failAt = n
	a.mu.Unlock()
}

func (a *Array) Reads() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Record(nil), a.reads...)
}

func (a *Array) ResetReads() {
	a.mu.Lock()
	a.reads = a.reads[:0]
	a.mu.Unlock()
}

func (a *Array) Issued() int64 { return a.issued.Load() }

//
// sector access
//

func (a *Array) ReadSector(pos int, pba uint64, dst []byte) error {
	v, err := a.db.GetString(collection(pos), key(pba))
	if err != nil {
		return err
	}
	if _, err := hex.Decode(dst, []byte(v)); err != nil {
		return errors.Wrapf(err, "pos %d pba %d", pos, pba)
	}
	return nil
}

func (a *Array) WriteSector(pos int, pba uint64, src []byte) error {
	return a.db.SetString(collection(pos), key(pba), hex.EncodeToString(src))
}

// Corrupt flips one payload bit of a stored sector
func (a *Array) Corrupt(pos int, pba uint64) error {
	sec := make([]byte, parity.SectorSize)
	if err := a.ReadSector(pos, pba, sec); err != nil {
		return err
	}
	sec[pba%parity.PayloadSize] ^= 0x10
	return a.WriteSector(pos, pba, sec)
}

// Misdirect overwrites a sector with the content of another one: a lost or
// misplaced write that only the lba stamp can tell
func (a *Array) Misdirect(pos int, pba, from uint64) error {
	sec := make([]byte, parity.SectorSize)
	if err := a.ReadSector(pos, from, sec); err != nil {
		return err
	}
	return a.WriteSector(pos, pba, sec)
}

//
// raid.Drives
//

func (a *Array) Read(r *raid.ReadReq, cb func(raid.Completion)) error {
	if r.Pos < 0 || r.Pos >= a.width || len(r.Sectors) == 0 {
		return errors.Errorf("invalid %s", r)
	}
	a.mu.Lock()
	if a.failAt > 0 {
		a.failAt--
		if a.failAt == 0 {
			a.mu.Unlock()
			return errors.Errorf("%s: injected issue failure", r)
		}
	}
	a.reads = append(a.reads, Record{Tag: r.Tag, PBA: r.PBA, Pos: r.Pos, Blocks: len(r.Sectors), Prio: r.Prio})
	var (
		dead  = a.dead.Has(r.Pos)
		fault = a.match(r)
		hook  = a.onRead
		lat   = a.latency
	)
	a.mu.Unlock()
	a.issued.Add(1)

	go func() {
		if lat > 0 {
			time.Sleep(lat)
		}
		if hook != nil {
			hook(r)
		}
		cb(a.complete(r, dead, fault))
	}()
	return nil
}

func (a *Array) complete(r *raid.ReadReq, dead bool, f *Fault) raid.Completion {
	switch {
	case dead:
		return raid.Completion{Status: raid.DriveDead}
	case f == nil:
	case f.Kind == FaultRetryable:
		return raid.Completion{Status: raid.DriveRetryable}
	case f.Kind == FaultDropped:
		return raid.Completion{Status: raid.DriveDropped}
	case f.Kind == FaultAborted:
		return raid.Completion{Status: raid.DriveAborted}
	}
	n := len(r.Sectors)
	if f != nil && f.Kind == FaultMedia && f.PBA != AnyPBA {
		n = int(f.PBA - r.PBA)
	} else if f != nil && f.Kind == FaultMedia {
		n = 0
	}
	for i := range n {
		if err := a.ReadSector(r.Pos, r.PBA+uint64(i), r.Sectors[i]); err != nil {
			nlog.Warningf("%s: sector %d: %v", r, i, err)
			return raid.Completion{Status: raid.DriveMediaError, BadBlock: i}
		}
	}
	if n < len(r.Sectors) {
		return raid.Completion{Status: raid.DriveMediaError, BadBlock: n}
	}
	return raid.Completion{Status: raid.DriveSuccess}
}
