// Package dbdriver provides key-value stores backing the simulated drives:
// an in-memory mock and a persistent buntdb database.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package dbdriver_test

import (
	"path/filepath"

	"github.com/NVIDIA/raidio/dbdriver"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type geometry struct {
	Width  int `json:"width"`
	Parity int `json:"parity"`
}

func describeDriver(name string, open func() dbdriver.Driver) {
	Describe(name, func() {
		var db dbdriver.Driver

		BeforeEach(func() {
			db = open()
		})
		AfterEach(func() {
			Expect(db.Close()).To(Succeed())
		})

		It("stores and loads objects", func() {
			Expect(db.Set("meta", "geometry", &geometry{Width: 5, Parity: 1})).To(Succeed())
			var g geometry
			Expect(db.Get("meta", "geometry", &g)).To(Succeed())
			Expect(g).To(Equal(geometry{Width: 5, Parity: 1}))
		})

		It("stores and loads strings", func() {
			Expect(db.SetString("pos.00", "0000000000000001", "abcd")).To(Succeed())
			s, err := db.GetString("pos.00", "0000000000000001")
			Expect(err).NotTo(HaveOccurred())
			Expect(s).To(Equal("abcd"))

			Expect(db.SetString("pos.00", "0000000000000001", "efgh")).To(Succeed())
			s, err = db.GetString("pos.00", "0000000000000001")
			Expect(err).NotTo(HaveOccurred())
			Expect(s).To(Equal("efgh"))
		})

		It("reports missing keys as not found", func() {
			_, err := db.GetString("pos.01", "missing")
			Expect(dbdriver.IsErrNotFound(err)).To(BeTrue())
			Expect(dbdriver.IsErrNotFound(db.Delete("pos.01", "missing"))).To(BeTrue())
		})

		It("lists keys of a collection in order", func() {
			for _, k := range []string{"03", "01", "02"} {
				Expect(db.SetString("pos.02", k, k)).To(Succeed())
			}
			Expect(db.SetString("pos.03", "01", "x")).To(Succeed())
			Expect(db.SetString("pos.02", "11", "y")).To(Succeed())

			keys, err := db.List("pos.02", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(Equal([]string{"01", "02", "03", "11"}))

			keys, err = db.List("pos.02", "0")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(Equal([]string{"01", "02", "03"}))
		})

		It("deletes keys and collections", func() {
			Expect(db.SetString("pos.04", "a", "1")).To(Succeed())
			Expect(db.SetString("pos.04", "b", "2")).To(Succeed())
			Expect(db.SetString("pos.05", "a", "3")).To(Succeed())

			Expect(db.Delete("pos.04", "a")).To(Succeed())
			keys, err := db.List("pos.04", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(Equal([]string{"b"}))

			Expect(db.DeleteCollection("pos.04")).To(Succeed())
			keys, err = db.List("pos.04", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(BeEmpty())

			s, err := db.GetString("pos.05", "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(s).To(Equal("3"))
		})
	})
}

var _ = Describe("Driver", func() {
	describeDriver("DBMock", func() dbdriver.Driver { return dbdriver.NewDBMock() })
	describeDriver("BuntDB", func() dbdriver.Driver {
		db, err := dbdriver.NewBuntDB(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return db
	})

	It("persists buntdb to a file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "array.db")
		db, err := dbdriver.NewBuntDB(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(db.SetString("meta", "k", "v")).To(Succeed())
		Expect(db.Close()).To(Succeed())

		db, err = dbdriver.NewBuntDB(path)
		Expect(err).NotTo(HaveOccurred())
		defer db.Close()
		s, err := db.GetString("meta", "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(Equal("v"))
	})

	It("splits key paths", func() {
		c, k := dbdriver.ParsePath("pos.00##0000000000000008")
		Expect(c).To(Equal("pos.00"))
		Expect(k).To(Equal("0000000000000008"))
		c, k = dbdriver.ParsePath("meta")
		Expect(c).To(Equal("meta"))
		Expect(k).To(BeEmpty())
	})
})
