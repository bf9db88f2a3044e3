// Package parity implements the sector format (payload + checksum + lba stamp)
// and the parity codec used to certify and reconstruct RAID stripes.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package parity_test

import (
	"bytes"
	"math/rand/v2"

	"github.com/NVIDIA/raidio/parity"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func sealedRow(k, m int, lba0 uint64) [][]byte {
	rnd := rand.New(rand.NewPCG(lba0, 7))
	shards := make([][]byte, k+m)
	for i := range shards {
		shards[i] = make([]byte, parity.SectorSize)
		if i < k {
			for j := range parity.PayloadSize {
				shards[i][j] = byte(rnd.UintN(256))
			}
			parity.Seal(shards[i], lba0+uint64(i))
		}
	}
	return shards
}

func clone(shards [][]byte) [][]byte {
	out := make([][]byte, len(shards))
	for i, sh := range shards {
		out[i] = append([]byte(nil), sh...)
	}
	return out
}

var _ = Describe("Sector", func() {
	It("validates a sealed sector", func() {
		sec := make([]byte, parity.SectorSize)
		sec[0], sec[511] = 1, 2
		parity.Seal(sec, 42)
		Expect(parity.CheckSector(sec, 42, true)).To(Equal(parity.CheckOK))
		Expect(parity.CheckSector(sec, 42, false)).To(Equal(parity.CheckOK))
	})

	It("detects a misdirected sector by its stamp", func() {
		sec := make([]byte, parity.SectorSize)
		parity.Seal(sec, 7)
		Expect(parity.CheckSector(sec, 8, false)).To(Equal(parity.CheckBadStamp))
		Expect(parity.CheckSector(sec, 8, true)).To(Equal(parity.CheckBadStamp))
	})

	It("detects corruption only on the full path", func() {
		sec := make([]byte, parity.SectorSize)
		parity.Seal(sec, 9)
		sec[100] ^= 0x80
		Expect(parity.CheckSector(sec, 9, false)).To(Equal(parity.CheckOK))
		Expect(parity.CheckSector(sec, 9, true)).To(Equal(parity.CheckBadCksum))
	})

	It("never accepts an all-zero sector", func() {
		sec := make([]byte, parity.SectorSize)
		Expect(parity.CheckSector(sec, 0, true)).NotTo(Equal(parity.CheckOK))
	})
})

var _ = Describe("Codec", func() {
	It("rejects unsupported geometry", func() {
		_, err := parity.NewCodec(4, 3)
		Expect(err).To(HaveOccurred())
		_, err = parity.NewCodec(0, 1)
		Expect(err).To(HaveOccurred())
	})

	It("computes single parity as XOR of the row", func() {
		c, err := parity.NewCodec(4, 1)
		Expect(err).NotTo(HaveOccurred())
		shards := sealedRow(4, 1, 100)
		Expect(c.Encode(shards)).To(Succeed())

		x := make([]byte, parity.SectorSize)
		parity.XOR(x, shards[:4]...)
		Expect(bytes.Equal(x, shards[4])).To(BeTrue())

		ok, err := c.Verify(shards)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	DescribeTable("reconstructs and certifies erased sectors",
		func(k, m int, erase []int) {
			c, err := parity.NewCodec(k, m)
			Expect(err).NotTo(HaveOccurred())
			shards := sealedRow(k, m, 1000)
			Expect(c.Encode(shards)).To(Succeed())
			orig := clone(shards)

			for _, i := range erase {
				shards[i] = nil
			}
			Expect(c.Reconstruct(shards)).To(Succeed())
			for i := range shards {
				Expect(shards[i]).To(Equal(orig[i]))
				if i < k {
					Expect(c.Check(shards[i], 1000+uint64(i), true)).To(Equal(parity.CheckOK))
				}
			}
		},
		Entry("raid5, data", 4, 1, []int{2}),
		Entry("raid5, parity", 4, 1, []int{4}),
		Entry("raid6, two data", 4, 2, []int{0, 3}),
		Entry("raid6, data and P", 4, 2, []int{1, 4}),
		Entry("raid6, P and Q", 4, 2, []int{4, 5}),
	)

	It("refuses more erasures than parity", func() {
		c, err := parity.NewCodec(4, 1)
		Expect(err).NotTo(HaveOccurred())
		shards := sealedRow(4, 1, 0)
		Expect(c.Encode(shards)).To(Succeed())
		shards[0], shards[1] = nil, nil
		Expect(c.Reconstruct(shards)).NotTo(Succeed())
	})

	It("detects incoherent parity", func() {
		c, err := parity.NewCodec(3, 2)
		Expect(err).NotTo(HaveOccurred())
		shards := sealedRow(3, 2, 0)
		Expect(c.Encode(shards)).To(Succeed())
		shards[4][17] ^= 1
		ok, err := c.Verify(shards)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("reconstructs with a corrupted data sector that fails certification", func() {
		c, err := parity.NewCodec(4, 1)
		Expect(err).NotTo(HaveOccurred())
		shards := sealedRow(4, 1, 50)
		Expect(c.Encode(shards)).To(Succeed())
		shards[1][3] ^= 0xff // corrupt a survivor
		shards[2] = nil
		Expect(c.Reconstruct(shards)).To(Succeed())
		Expect(c.Check(shards[2], 52, true)).NotTo(Equal(parity.CheckOK))
	})
})
