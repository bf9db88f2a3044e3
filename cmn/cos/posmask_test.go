// Package cos provides common low-level types and utilities for all raidio packages
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cos_test

import (
	"errors"

	"github.com/NVIDIA/raidio/cmn/cos"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PosMask", func() {
	It("adds and removes positions", func() {
		var m cos.PosMask
		m = m.Add(0).Add(3).Add(63)
		Expect(m.Has(3)).To(BeTrue())
		Expect(m.Has(2)).To(BeFalse())
		Expect(m.Count()).To(Equal(3))
		Expect(m.Positions()).To(Equal([]int{0, 3, 63}))
		Expect(m.String()).To(Equal("[0,3,63]"))

		m = m.Del(3)
		Expect(m.Has(3)).To(BeFalse())
		Expect(m.Count()).To(Equal(2))
	})

	It("reports overlap", func() {
		a := cos.PosBit(1) | cos.PosBit(4)
		Expect(a.Overlaps(cos.PosBit(4))).To(BeTrue())
		Expect(a.Overlaps(cos.PosBit(2))).To(BeFalse())
		Expect(cos.PosMask(0).String()).To(Equal("[]"))
		Expect(cos.PosMask(0).Positions()).To(BeEmpty())
	})
})

var _ = Describe("Errs", func() {
	It("dedups and caps", func() {
		errs := cos.NewErrs(2)
		errs.Add(errors.New("a"))
		errs.Add(errors.New("a"))
		errs.Add(errors.New("b"))
		errs.Add(errors.New("c"))
		Expect(errs.Cnt()).To(Equal(2))
		Expect(errs.Error()).To(Equal("a (and 1 more error)"))
		cnt, err := errs.JoinErr()
		Expect(cnt).To(Equal(2))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Size", func() {
	DescribeTable("formats IEC sizes",
		func(b int64, expected string) {
			Expect(cos.ToSizeIEC(b, 1)).To(Equal(expected))
		},
		Entry("bytes", int64(520), "520B"),
		Entry("kib", int64(520*8), "4.1KiB"),
		Entry("mib", int64(3*cos.MiB), "3.0MiB"),
	)

	It("divides rounding up", func() {
		Expect(cos.DivCeil(10, 4)).To(Equal(int64(3)))
		Expect(cos.DivCeil(8, 4)).To(Equal(int64(2)))
	})
})

var _ = Describe("Assert", func() {
	It("panics with the formatted message", func() {
		Expect(func() { cos.Assert(true) }).NotTo(Panic())
		Expect(func() { cos.Assert(false) }).To(PanicWith("assertion failed"))
		Expect(func() { cos.AssertMsg(false, "stripe 3") }).To(PanicWith("assertion failed: stripe 3"))
		Expect(func() { cos.Assertf(false, "invalid width %d", 65) }).To(PanicWith("assertion failed: invalid width 65"))
	})

	It("panics with the error itself", func() {
		err := errors.New("bad")
		Expect(func() { cos.AssertNoErr(nil) }).NotTo(Panic())
		Expect(func() { cos.AssertNoErr(err) }).To(PanicWith(err))
	})
})
