// Package stats provides methods and functionality to register, track, and
// export RAID read-path metrics that, for the most part, include "counter" and "latency" kinds.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	ratomic "sync/atomic"

	"github.com/NVIDIA/raidio/cmn/debug"

	"github.com/prometheus/client_golang/prometheus"
)

// every tracked value keeps an in-process copy (for snapshots and logs)
// and forwards the update to its prometheus collector
type (
	iprom interface {
		inc(parent *statsValue)
		incWith(parent *statsValue, labels prometheus.Labels)
		add(parent *statsValue, val int64)
		set(parent *statsValue, val int64)
		observe(parent *statsValue, val float64)
		collector() prometheus.Collector
	}

	counter    struct{ prometheus.Counter }
	counterVec struct{ *prometheus.CounterVec }
	gauge      struct{ prometheus.Gauge }
	histogram  struct{ prometheus.Histogram }
)

// interface guard
var (
	_ iprom = (*counter)(nil)
	_ iprom = (*counterVec)(nil)
	_ iprom = (*gauge)(nil)
	_ iprom = (*histogram)(nil)
)

func (v counter) inc(parent *statsValue) {
	ratomic.AddInt64(&parent.Value, 1)
	v.Inc()
}

func (v counter) add(parent *statsValue, val int64) {
	ratomic.AddInt64(&parent.Value, val)
	v.Add(float64(val))
}

func (v counterVec) incWith(parent *statsValue, labels prometheus.Labels) {
	ratomic.AddInt64(&parent.Value, 1)
	v.With(labels).Inc()
}

func (v gauge) inc(parent *statsValue) {
	ratomic.AddInt64(&parent.Value, 1)
	v.Inc()
}

func (v gauge) add(parent *statsValue, val int64) {
	ratomic.AddInt64(&parent.Value, val)
	v.Add(float64(val))
}

func (v gauge) set(parent *statsValue, val int64) {
	ratomic.StoreInt64(&parent.Value, val)
	v.Set(float64(val))
}

func (h histogram) observe(parent *statsValue, val float64) {
	ratomic.AddInt64(&parent.numSamples, 1)
	ratomic.AddInt64(&parent.cumulative, int64(val*1e9))
	h.Observe(val)
}

func (v counter) collector() prometheus.Collector    { return v.Counter }
func (v counterVec) collector() prometheus.Collector { return v.CounterVec }
func (v gauge) collector() prometheus.Collector      { return v.Gauge }
func (h histogram) collector() prometheus.Collector  { return h.Histogram }

// illegal impl. placeholders

func (counter) incWith(*statsValue, prometheus.Labels)   { debug.Assert(false) }
func (counter) set(*statsValue, int64)                   { debug.Assert(false) }
func (counter) observe(*statsValue, float64)             { debug.Assert(false) }
func (counterVec) inc(*statsValue)                       { debug.Assert(false) }
func (counterVec) add(*statsValue, int64)                { debug.Assert(false) }
func (counterVec) set(*statsValue, int64)                { debug.Assert(false) }
func (counterVec) observe(*statsValue, float64)          { debug.Assert(false) }
func (gauge) incWith(*statsValue, prometheus.Labels)     { debug.Assert(false) }
func (gauge) observe(*statsValue, float64)               { debug.Assert(false) }
func (histogram) inc(*statsValue)                        { debug.Assert(false) }
func (histogram) incWith(*statsValue, prometheus.Labels) { debug.Assert(false) }
func (histogram) add(*statsValue, int64)                 { debug.Assert(false) }
func (histogram) set(*statsValue, int64)                 { debug.Assert(false) }
