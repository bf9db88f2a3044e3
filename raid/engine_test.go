// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid_test

import (
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NVIDIA/raidio/cmn"
	"github.com/NVIDIA/raidio/drive"
	"github.com/NVIDIA/raidio/memsys"
	"github.com/NVIDIA/raidio/parity"
	"github.com/NVIDIA/raidio/raid"
	"github.com/NVIDIA/raidio/stats"
	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Engine", func() {
	var e *env

	AfterEach(func() {
		e.close()
	})

	Describe("normal reads", func() {
		BeforeEach(func() {
			e = newEnv(envOpts{})
		})

		It("reads a full stripe with one read per data position", func() {
			res := e.read(0, 32, raid.AlgRead)
			e.expectData(res, 0, 32)

			reads := e.arr.Reads()
			Expect(reads).To(HaveLen(4))
			parityPos := e.grp.ParityPos(0)[0]
			for _, r := range reads {
				Expect(r.Pos).NotTo(Equal(parityPos))
				Expect(r.Blocks).To(Equal(elementSize))
				Expect(r.PBA).To(BeZero())
			}
			e.expectIdle()
		})

		It("reads a partial region touching only its positions", func() {
			res := e.read(5, 10, raid.AlgVerifyRead)
			e.expectData(res, 5, 10)
			reads := e.arr.Reads()
			Expect(reads).To(HaveLen(2))
			Expect(reads[0].Blocks + reads[1].Blocks).To(Equal(10))
		})

		DescribeTable("reads across stripes",
			func(pipeline bool) {
				e.cfg.Raid.PipelineGen = pipeline
				res := e.read(5, 70, raid.AlgRead)
				e.expectData(res, 5, 70)
				Expect(e.stats.Get(stats.SiotsCount)).To(Equal(int64(3)))
				e.expectIdle()
			},
			Entry("pipelined generation", true),
			Entry("sequential generation", false),
		)

		It("reads an empty region", func() {
			res := e.read(7, 0, raid.AlgRead)
			Expect(res.Status).To(Equal(raid.StatusSuccess))
			Expect(res.Data).To(BeEmpty())
			Expect(e.arr.Reads()).To(BeEmpty())
		})

		It("rejects regions outside the group", func() {
			res := e.read(e.grp.Capacity()-4, 8, raid.AlgRead)
			Expect(res.Status).To(Equal(raid.StatusInternal))
			Expect(raid.IsErrInternal(res.Err)).To(BeTrue())

			res = e.read(0, 8, raid.AlgDegradedRead)
			Expect(res.Status).To(Equal(raid.StatusInternal))
			Expect(e.arr.Reads()).To(BeEmpty())
		})

		It("rejects regions whose end wraps around", func() {
			res := e.read(math.MaxUint64-1, 4, raid.AlgRead)
			Expect(res.Status).To(Equal(raid.StatusInternal))
			Expect(raid.IsErrInternal(res.Err)).To(BeTrue())
			Expect(res.Data).To(BeNil())

			res = e.read(4, math.MaxInt, raid.AlgVerifyRead)
			Expect(res.Status).To(Equal(raid.StatusInternal))
			Expect(e.arr.Reads()).To(BeEmpty())
			e.expectIdle()
		})

		It("serves concurrent reads", func() {
			var wg sync.WaitGroup
			for i := range 16 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					lba := uint64(i * 7)
					res := e.eng.Read(context.Background(), raid.Region{LBA: lba, Blocks: 9}, raid.AlgRead, raid.Priority(i%4))
					e.expectData(res, lba, 9)
				}()
			}
			wg.Wait()
			e.expectIdle()
		})

		It("records spans", func() {
			e.expectData(e.read(0, 40, raid.AlgRead), 0, 40)
			names := e.spanNames()
			Expect(names).To(HaveKeyWithValue("read", 1))
			Expect(names).To(HaveKeyWithValue("siots", 2))
			Expect(names).To(HaveKeyWithValue("fru.send-chain", 2))
		})
	})

	Describe("degraded reads", func() {
		It("reconstructs a dead member from the survivors", func() {
			e = newEnv(envOpts{})
			dead := e.grp.DataPos(0, 1)
			e.kill(dead)

			res := e.read(0, 32, raid.AlgRead)
			e.expectData(res, 0, 32)
			for _, r := range e.arr.Reads() {
				Expect(r.Pos).NotTo(Equal(dead))
				Expect(r.Tag).To(ContainSubstring("degraded-read"))
			}
			Expect(e.stats.Get(stats.ReconstructCount)).To(Equal(int64(elementSize)))
			Expect(e.spanNames()).To(HaveKey("degraded-read"))
			e.expectIdle()
		})

		It("matches the XOR of the surviving sectors", func() {
			e = newEnv(envOpts{})
			dead := e.grp.DataPos(1, 2)
			e.kill(dead)
			lba := e.grp.LBA(1, 2, 3)

			res := e.read(lba, 1, raid.AlgRead)
			e.expectData(res, lba, 1)

			var survivors [][]byte
			for pos := range e.grp.Width {
				if pos == dead {
					continue
				}
				sec := make([]byte, parity.SectorSize)
				Expect(e.arr.ReadSector(pos, e.grp.PBA(1, 3), sec)).To(Succeed())
				survivors = append(survivors, sec)
			}
			x := make([]byte, parity.SectorSize)
			parity.XOR(x, survivors...)
			Expect(res.Data).To(Equal(x[:parity.PayloadSize]))
		})

		It("discovers a dead drive the group does not know about", func() {
			e = newEnv(envOpts{})
			e.arr.Kill(e.grp.DataPos(0, 0))
			e.expectData(e.read(0, 16, raid.AlgRead), 0, 16)
		})

		It("shuts down with more dead members than parity", func() {
			e = newEnv(envOpts{})
			e.kill(0)
			e.kill(1)
			res := e.read(0, 8, raid.AlgRead)
			Expect(res.Status).To(Equal(raid.StatusShutdown))
			Expect(errors.Is(res.Err, raid.ErrShutdown)).To(BeTrue())
			Expect(e.arr.Reads()).To(BeEmpty())
		})

		It("restarts when a member comes back mid-read", func() {
			e = newEnv(envOpts{})
			dead := e.grp.DataPos(0, 0)
			e.kill(dead)
			var once sync.Once
			e.arr.OnRead(func(r *raid.ReadReq) {
				if strings.Contains(r.Tag, raid.AlgDegradedRead.String()) {
					once.Do(func() {
						e.grp.SetAlive(dead)
						e.arr.Revive(dead)
					})
				}
			})
			res := e.read(0, 32, raid.AlgRead)
			e.expectData(res, 0, 32)
			Expect(e.stats.Get(stats.RestartCount)).To(Equal(int64(1)))
		})

		It("reports a media error on a survivor as unrecoverable", func() {
			e = newEnv(envOpts{})
			e.kill(e.grp.DataPos(0, 0))
			e.arr.Inject(&drive.Fault{Pos: e.grp.DataPos(0, 1), PBA: 3, Kind: drive.FaultMedia})

			res := e.read(0, 32, raid.AlgRead)
			Expect(res.Status).To(Equal(raid.StatusMediaError))
			Expect(res.LBA).To(Equal(uint64(3)))
			Expect(raid.IsErrMedia(res.Err)).To(BeTrue())
			Expect(e.stats.Get(stats.EscalateCount)).To(Equal(int64(1)))
			e.expectIdle()
		})

		It("reads around a dead member of a single-block region elsewhere", func() {
			e = newEnv(envOpts{})
			e.kill(e.grp.DataPos(0, 3))
			e.expectData(e.read(0, 8, raid.AlgRead), 0, 8)
			Expect(e.arr.Reads()).To(HaveLen(1))
		})
	})

	Describe("dual parity", func() {
		BeforeEach(func() {
			e = newEnv(envOpts{width: 6, parity: 2})
		})

		It("survives two dead members", func() {
			e.kill(e.grp.DataPos(0, 0))
			e.kill(e.grp.DataPos(0, 2))
			e.expectData(e.read(0, 32, raid.AlgVerifyRead), 0, 32)
			Expect(e.stats.Get(stats.ReconstructCount)).To(Equal(int64(2 * elementSize)))
			e.expectIdle()
		})

		It("corrects corruption with a dead member", func() {
			e.kill(e.grp.DataPos(0, 0))
			Expect(e.arr.Corrupt(e.grp.DataPos(0, 1), e.grp.PBA(0, 4))).To(Succeed())
			e.expectData(e.read(0, 32, raid.AlgVerifyRead), 0, 32)
		})

		It("shuts down with three dead members", func() {
			e.kill(0)
			e.kill(1)
			e.kill(2)
			res := e.read(0, 32, raid.AlgRead)
			Expect(res.Status).To(Equal(raid.StatusShutdown))
		})
	})

	Describe("corruption", func() {
		BeforeEach(func() {
			e = newEnv(envOpts{})
		})

		It("corrects a misdirected sector", func() {
			pos, pba := e.grp.DataPos(0, 2), e.grp.PBA(0, 5)
			Expect(e.arr.Misdirect(pos, pba, pba+1)).To(Succeed())
			e.expectData(e.read(0, 32, raid.AlgRead), 0, 32)
			Expect(e.stats.Get(stats.ReconstructCount)).To(Equal(int64(1)))
			Expect(e.spanNames()).To(HaveKey("recovery-verify"))
		})

		It("corrects a corrupted sector on verify-read", func() {
			Expect(e.arr.Corrupt(e.grp.DataPos(0, 0), e.grp.PBA(0, 7))).To(Succeed())
			e.expectData(e.read(0, 32, raid.AlgVerifyRead), 0, 32)
			Expect(e.stats.Get(stats.ReconstructCount)).To(Equal(int64(1)))
		})

		It("corrects concurrent reads of the same stripe", func() {
			Expect(e.arr.Corrupt(e.grp.DataPos(0, 1), e.grp.PBA(0, 1))).To(Succeed())
			var wg sync.WaitGroup
			for range 8 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					e.expectData(e.read(8, 8, raid.AlgVerifyRead), 8, 8)
				}()
			}
			wg.Wait()
			e.expectIdle()
		})

		DescribeTable("reports the lowest unrecoverable block within the region",
			func(lba uint64, blocks int, expected uint64) {
				// two corrupted data sectors in one row: beyond single parity
				Expect(e.arr.Corrupt(e.grp.DataPos(0, 0), e.grp.PBA(0, 2))).To(Succeed())
				Expect(e.arr.Corrupt(e.grp.DataPos(0, 1), e.grp.PBA(0, 2))).To(Succeed())

				res := e.read(lba, blocks, raid.AlgVerifyRead)
				Expect(res.Status).To(Equal(raid.StatusMediaError))
				Expect(res.LBA).To(Equal(expected))
				var me *raid.ErrMedia
				Expect(errors.As(res.Err, &me)).To(BeTrue())
				Expect(me.LBA).To(Equal(expected))
				Expect(res.Data).To(BeNil())
			},
			Entry("region from the stripe start", uint64(0), 16, uint64(2)),
			Entry("region past the first bad block", uint64(5), 10, uint64(5)),
		)

		It("succeeds when only rows of other positions are lost", func() {
			// row 2 is lost on data 0 and 1; data 2 is corrupted in row 6
			Expect(e.arr.Corrupt(e.grp.DataPos(0, 0), e.grp.PBA(0, 2))).To(Succeed())
			Expect(e.arr.Corrupt(e.grp.DataPos(0, 1), e.grp.PBA(0, 2))).To(Succeed())
			Expect(e.arr.Corrupt(e.grp.DataPos(0, 2), e.grp.PBA(0, 6))).To(Succeed())
			e.expectData(e.read(16, 8, raid.AlgVerifyRead), 16, 8)
			Expect(e.stats.Get(stats.ReconstructCount)).To(Equal(int64(1)))
		})
	})

	Describe("drive errors", func() {
		BeforeEach(func() {
			e = newEnv(envOpts{})
		})

		It("corrects a permanent media error", func() {
			e.arr.Inject(&drive.Fault{Pos: e.grp.DataPos(0, 1), PBA: 3, Kind: drive.FaultMedia})
			e.expectData(e.read(0, 32, raid.AlgRead), 0, 32)
			Expect(e.stats.Get(stats.ReconstructCount)).To(Equal(int64(elementSize - 3)))
			e.expectIdle()
		})

		It("retries a transient error", func() {
			e.arr.Inject(&drive.Fault{Pos: e.grp.DataPos(0, 2), PBA: drive.AnyPBA, Count: 2, Kind: drive.FaultRetryable})
			e.expectData(e.read(0, 32, raid.AlgRead), 0, 32)
			Expect(e.stats.Get(stats.RetryCount)).To(Equal(int64(1)))
		})

		It("gives up on a persistent retryable error", func() {
			e.arr.Inject(&drive.Fault{Pos: e.grp.DataPos(0, 2), PBA: drive.AnyPBA, Kind: drive.FaultRetryable})
			res := e.read(4, 24, raid.AlgRead)
			Expect(res.Status).To(Equal(raid.StatusMediaError))
			Expect(res.LBA).To(Equal(uint64(4)))
			Expect(e.stats.Get(stats.RetryCount)).To(Equal(int64(e.cfg.Raid.RetryLimit)))
			e.expectIdle()
		})

		It("drops on a dropped read", func() {
			e.arr.Inject(&drive.Fault{Pos: e.grp.DataPos(0, 0), PBA: drive.AnyPBA, Kind: drive.FaultDropped})
			res := e.read(0, 32, raid.AlgRead)
			Expect(res.Status).To(Equal(raid.StatusDropped))
			Expect(errors.Is(res.Err, raid.ErrDropped)).To(BeTrue())
			e.expectIdle()
		})

		It("aborts on a drive abort", func() {
			e.arr.Inject(&drive.Fault{Pos: e.grp.DataPos(0, 0), PBA: drive.AnyPBA, Kind: drive.FaultAborted})
			res := e.read(0, 32, raid.AlgRead)
			Expect(res.Status).To(Equal(raid.StatusAborted))
		})

		It("fails internally when a read cannot be issued", func() {
			e.arr.FailIssue(2)
			res := e.read(0, 32, raid.AlgRead)
			Expect(res.Status).To(Equal(raid.StatusInternal))
			Expect(raid.IsErrInternal(res.Err)).To(BeTrue())
			Expect(e.stats.Get(stats.InternalErrCount)).To(Equal(int64(1)))
			// buffers of the issued read are never recycled
			Expect(e.pool.Stats().Dropped).To(Equal(int64(1)))
			e.expectIdle()
		})

		It("keeps the most severe failure across stripes", func() {
			e.arr.Inject(&drive.Fault{Pos: e.grp.DataPos(0, 0), PBA: drive.AnyPBA, Kind: drive.FaultDropped})
			e.arr.Inject(&drive.Fault{Pos: e.grp.DataPos(1, 0), PBA: drive.AnyPBA, Kind: drive.FaultAborted})
			res := e.read(0, 64, raid.AlgRead)
			Expect(res.Status).To(Equal(raid.StatusAborted))
		})
	})

	Describe("buffers", func() {
		It("waits for a deferred allocation", func() {
			e = newEnv(envOpts{maxSectors: 32})
			held, st := e.pool.Request(32, nil)
			Expect(st).To(Equal(memsys.AllocImmediate))

			req := e.eng.Submit(context.Background(), raid.Region{LBA: 0, Blocks: 32}, raid.AlgRead, raid.PrioNormal)
			Eventually(func() int64 { return e.stats.Get(stats.AllocPendCount) }).Should(Equal(int64(1)))
			Consistently(req.Done(), 50*time.Millisecond).ShouldNot(BeClosed())

			e.pool.Free(held)
			e.expectData(req.Wait(), 0, 32)
			e.expectIdle()
		})

		It("fails an allocation that can never be granted", func() {
			e = newEnv(envOpts{maxSectors: 16})
			res := e.read(0, 32, raid.AlgRead)
			Expect(res.Status).To(Equal(raid.StatusInternal))
			Expect(e.pool.Stats().Refused).To(Equal(int64(1)))
		})
	})

	Describe("abort", func() {
		BeforeEach(func() {
			e = newEnv(envOpts{maxSectors: 32})
		})

		It("aborts with reads in flight", func() {
			e.arr.SetLatency(50 * time.Millisecond)
			req := e.eng.Submit(context.Background(), raid.Region{LBA: 0, Blocks: 96}, raid.AlgRead, raid.PrioNormal)
			req.Abort()
			res := req.Wait()
			Expect(res.Status).To(Equal(raid.StatusAborted))
			Expect(errors.Is(res.Err, raid.ErrAborted)).To(BeTrue())
			Expect(res.Data).To(BeNil())
			e.expectIdle()
		})

		It("aborts on context cancellation", func() {
			e.arr.SetLatency(50 * time.Millisecond)
			ctx, cancel := context.WithCancel(context.Background())
			req := e.eng.Submit(ctx, raid.Region{LBA: 0, Blocks: 32}, raid.AlgRead, raid.PrioNormal)
			cancel()
			Expect(req.Wait().Status).To(Equal(raid.StatusAborted))
			e.expectIdle()
		})

		It("aborts a deferred allocation", func() {
			held, _ := e.pool.Request(32, nil)
			req := e.eng.Submit(context.Background(), raid.Region{LBA: 0, Blocks: 32}, raid.AlgRead, raid.PrioNormal)
			Eventually(func() int64 { return e.stats.Get(stats.AllocPendCount) }).Should(Equal(int64(1)))
			req.Abort()
			e.pool.Free(held)
			Expect(req.Wait().Status).To(Equal(raid.StatusAborted))
			Expect(e.arr.Reads()).To(BeEmpty())
			e.expectIdle()
		})

		It("aborts a sub-request waiting on the stripe gate", func() {
			// both requests need recovery-verify of stripe 0; the first holds
			// the gate with its reads stalled
			Expect(e.arr.Corrupt(e.grp.DataPos(0, 0), e.grp.PBA(0, 0))).To(Succeed())
			held, release := e.holdReads(raid.AlgRecoveryVerify)
			a := e.eng.Submit(context.Background(), raid.Region{LBA: 0, Blocks: 8}, raid.AlgVerifyRead, raid.PrioNormal)
			Eventually(held.Load).Should(BeNumerically(">", 0))

			b := e.eng.Submit(context.Background(), raid.Region{LBA: 0, Blocks: 4}, raid.AlgVerifyRead, raid.PrioNormal)
			Eventually(func() bool { return e.issuedBy(b) }).Should(BeTrue())
			Consistently(b.Done(), 100*time.Millisecond).ShouldNot(BeClosed())

			b.Abort()
			Eventually(b.Done()).WithTimeout(time.Second).Should(BeClosed())
			res := b.Wait()
			Expect(res.Status).To(Equal(raid.StatusAborted))
			Expect(res.Data).To(BeNil())
			Expect(a.Done()).NotTo(BeClosed())

			release()
			e.expectData(a.Wait(), 0, 8)
			e.expectIdle()
		})

		DescribeTable("aborts a sub-request waiting on its nested sub-request",
			func(nested raid.Algorithm, damage func(e *env), alg raid.Algorithm) {
				damage(e)
				held, release := e.holdReads(nested)
				req := e.eng.Submit(context.Background(), raid.Region{LBA: 0, Blocks: 8}, alg, raid.PrioNormal)
				Eventually(held.Load).Should(BeNumerically(">", 0))

				req.Abort()
				release()
				res := req.Wait()
				Expect(res.Status).To(Equal(raid.StatusAborted))
				Expect(res.Data).To(BeNil())
				Expect(e.spanNames()).To(HaveKey(nested.String()))
				e.expectIdle()
			},
			Entry("recovery-verify", raid.AlgRecoveryVerify, func(e *env) {
				Expect(e.arr.Corrupt(e.grp.DataPos(0, 0), e.grp.PBA(0, 3))).To(Succeed())
			}, raid.AlgVerifyRead),
			Entry("degraded-read", raid.AlgDegradedRead, func(e *env) {
				e.kill(e.grp.DataPos(0, 0))
			}, raid.AlgRead),
		)

		It("aborts a parked sub-request", func() {
			e.grp.Quiesce()
			req := e.eng.Submit(context.Background(), raid.Region{LBA: 0, Blocks: 8}, raid.AlgRead, raid.PrioNormal)
			Eventually(func() int64 { return e.stats.Get(stats.ParkCount) }).Should(Equal(int64(1)))
			req.Abort()
			Expect(req.Wait().Status).To(Equal(raid.StatusAborted))
			Expect(e.arr.Reads()).To(BeEmpty())
		})
	})

	Describe("quiesce", func() {
		It("parks until unquiesced", func() {
			e = newEnv(envOpts{})
			e.grp.Quiesce()
			Expect(e.grp.Quiesced()).To(BeTrue())
			req := e.eng.Submit(context.Background(), raid.Region{LBA: 0, Blocks: 40}, raid.AlgRead, raid.PrioHigh)
			Eventually(func() int64 { return e.stats.Get(stats.ParkCount) }).Should(BeNumerically(">=", 1))
			Consistently(req.Done(), 50*time.Millisecond).ShouldNot(BeClosed())
			Expect(e.arr.Reads()).To(BeEmpty())

			e.grp.Unquiesce()
			e.expectData(req.Wait(), 0, 40)
		})
	})

	Describe("config", func() {
		It("validates checksums on every read when configured", func() {
			e = newEnv(envOpts{modify: func(c *cmn.Config) { c.Raid.CheckChecksum = true }})
			Expect(e.arr.Corrupt(e.grp.DataPos(2, 3), e.grp.PBA(2, 0))).To(Succeed())
			lba := e.grp.LBA(2, 3, 0)
			e.expectData(e.read(lba, 4, raid.AlgRead), lba, 4)
			Expect(e.stats.Get(stats.ReconstructCount)).To(Equal(int64(1)))
		})

		DescribeTable("bounds escalations",
			func(maxEscalations int, expected raid.Status, escalations int64) {
				e = newEnv(envOpts{modify: func(c *cmn.Config) { c.Raid.MaxEscalations = maxEscalations }})
				// a member the group does not know is dead, and a media error on the data:
				// recovery-verify -> degraded-read -> recovery-verify
				e.arr.Kill(e.grp.DataPos(0, 2))
				e.arr.Inject(&drive.Fault{Pos: e.grp.DataPos(0, 0), PBA: 3, Kind: drive.FaultMedia})

				res := e.read(0, 8, raid.AlgRead)
				Expect(res.Status).To(Equal(expected))
				Expect(e.stats.Get(stats.EscalateCount)).To(Equal(escalations))
				if expected == raid.StatusMediaError {
					Expect(res.LBA).To(Equal(uint64(3)))
				}
				e.expectIdle()
			},
			Entry("within the bound", 4, raid.StatusMediaError, int64(2)),
			Entry("beyond the bound", 1, raid.StatusShutdown, int64(1)),
		)
	})
})

// holdReads stalls the drive reads of a nested algorithm until release;
// held counts the stalled reads
func (e *env) holdReads(nested raid.Algorithm) (held *atomic.Int32, release func()) {
	var (
		gate = make(chan struct{})
		once sync.Once
	)
	held = &atomic.Int32{}
	release = func() { once.Do(func() { close(gate) }) }
	DeferCleanup(release)
	e.arr.OnRead(func(r *raid.ReadReq) {
		if strings.Contains(r.Tag, "/"+nested.String()) {
			held.Add(1)
			<-gate
		}
	})
	return held, release
}

// issuedBy reports whether the request's own (not nested) reads have been issued
func (e *env) issuedBy(req *raid.Request) bool {
	for _, r := range e.arr.Reads() {
		if strings.HasPrefix(r.Tag, req.ID()+".") && !strings.Contains(r.Tag, "/") {
			return true
		}
	}
	return false
}
