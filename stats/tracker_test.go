// Package stats provides methods and functionality to register, track, and
// export RAID read-path metrics that, for the most part, include "counter" and "latency" kinds.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package stats_test

import (
	"time"

	"github.com/NVIDIA/raidio/stats"
	"github.com/prometheus/client_golang/prometheus"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tracker", func() {
	var (
		reg *prometheus.Registry
		t   *stats.Tracker
	)

	BeforeEach(func() {
		reg = prometheus.NewRegistry()
		t = stats.NewTracker(reg)
	})

	gather := func() map[string]float64 {
		mfs, err := reg.Gather()
		Expect(err).NotTo(HaveOccurred())
		out := make(map[string]float64, len(mfs))
		for _, mf := range mfs {
			var sum float64
			for _, m := range mf.GetMetric() {
				switch {
				case m.GetCounter() != nil:
					sum += m.GetCounter().GetValue()
				case m.GetGauge() != nil:
					sum += m.GetGauge().GetValue()
				case m.GetHistogram() != nil:
					sum += float64(m.GetHistogram().GetSampleCount())
				}
			}
			out[mf.GetName()] = sum
		}
		return out
	}

	It("counts and exports", func() {
		t.Inc(stats.RetryCount)
		t.Inc(stats.RetryCount)
		t.Add(stats.ReconstructCount, 7)
		Expect(t.Get(stats.RetryCount)).To(Equal(int64(2)))
		Expect(t.Get(stats.ReconstructCount)).To(Equal(int64(7)))

		m := gather()
		Expect(m).To(HaveKeyWithValue("raidio_retry_total", 2.0))
		Expect(m).To(HaveKeyWithValue("raidio_reconstruct_total", 7.0))
	})

	It("counts by label", func() {
		t.IncWith(stats.ReadCount, prometheus.Labels{stats.LabelStatus: "success"})
		t.IncWith(stats.ReadCount, prometheus.Labels{stats.LabelStatus: "media-error"})
		t.IncWith(stats.SiotsCount, prometheus.Labels{stats.LabelAlg: "read", stats.LabelStatus: "success"})
		Expect(t.Get(stats.ReadCount)).To(Equal(int64(2)))

		m := gather()
		Expect(m).To(HaveKeyWithValue("raidio_read_total", 2.0))
		Expect(m).To(HaveKeyWithValue("raidio_siots_total", 1.0))
	})

	It("tracks gauges and latencies", func() {
		t.Add(stats.InflightSize, 3)
		t.Add(stats.InflightSize, -1)
		Expect(t.Get(stats.InflightSize)).To(Equal(int64(2)))

		t.Latency(stats.ReadLatency, 2*time.Millisecond)
		t.Latency(stats.ReadLatency, 4*time.Millisecond)
		Expect(t.AvgLatency(stats.ReadLatency)).To(BeNumerically("~", 3*time.Millisecond, time.Microsecond))

		m := gather()
		Expect(m).To(HaveKeyWithValue("raidio_read_inflight", 2.0))
		Expect(m).To(HaveKeyWithValue("raidio_read_seconds", 2.0))
	})

	It("snapshots values", func() {
		t.Inc(stats.ParkCount)
		snap := t.Snapshot()
		Expect(snap).To(HaveKeyWithValue(stats.ParkCount, int64(1)))
		Expect(snap).To(HaveKeyWithValue(stats.RestartCount, int64(0)))
		snap.Log()
	})

	It("keeps trackers independent", func() {
		other := stats.NewTracker(nil)
		other.Inc(stats.ParkCount)
		Expect(t.Get(stats.ParkCount)).To(BeZero())
	})
})
