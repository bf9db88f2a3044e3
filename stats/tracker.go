// Package stats provides methods and functionality to register, track, and
// export RAID read-path metrics that, for the most part, include "counter" and "latency" kinds.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"sort"
	"strconv"
	"strings"
	ratomic "sync/atomic"
	"time"

	"github.com/NVIDIA/raidio/cmn/debug"
	"github.com/NVIDIA/raidio/cmn/nlog"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "raidio"

// metric names: ".n" counters, ".ns" latencies, ".size" gauges
const (
	ReadCount        = "read.n"        // host requests by terminal status
	ReadLatency      = "read.ns"       // host request latency
	InflightSize     = "read.inflight" // host requests in flight
	SiotsCount       = "siots.n"       // siots by algorithm and terminal status
	FruCount         = "fru.n"         // drive completions by status
	RetryCount       = "retry.n"
	RestartCount     = "restart.n"
	EscalateCount    = "escalate.n"
	ParkCount        = "park.n"
	AllocPendCount   = "alloc.pending.n"
	ReconstructCount = "reconstruct.n" // reconstructed and certified sectors
	MismatchCount    = "parity.mismatch.n"
	InternalErrCount = "err.internal.n"
)

// label names
const (
	LabelStatus = "status"
	LabelAlg    = "algorithm"
)

type (
	statsValue struct {
		iprom
		Value      int64 `json:"v,string"`
		numSamples int64
		cumulative int64
	}
	// Tracker is safe for concurrent use; each engine owns one
	Tracker struct {
		reg     prometheus.Registerer
		tracker map[string]*statsValue
	}
	Snap map[string]int64
)

// NewTracker registers all metrics with `reg`; nil means a private registry
func NewTracker(reg prometheus.Registerer) *Tracker {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	t := &Tracker{reg: reg, tracker: make(map[string]*statsValue, 16)}
	t.regVec(ReadCount, "host read requests by terminal status", LabelStatus)
	t.regHist(ReadLatency, "host read latency (seconds)")
	t.regGauge(InflightSize, "host read requests in flight")
	t.regVec(SiotsCount, "sub-requests by algorithm and terminal status", LabelAlg, LabelStatus)
	t.regVec(FruCount, "drive read completions by status", LabelStatus)
	t.regCounter(RetryCount, "direct retries after recovery-verify")
	t.regCounter(RestartCount, "sub-request restarts after stale degraded state")
	t.regCounter(EscalateCount, "escalations between degraded-read and recovery-verify")
	t.regCounter(ParkCount, "sub-requests parked while the group was quiesced")
	t.regCounter(AllocPendCount, "deferred buffer allocations")
	t.regCounter(ReconstructCount, "sectors reconstructed and certified")
	t.regCounter(MismatchCount, "rows with valid data and incoherent parity")
	t.regCounter(InternalErrCount, "internal (invariant violation) errors")
	return t
}

func promName(name string) string {
	s := strings.ReplaceAll(name, ".", "_")
	switch {
	case strings.HasSuffix(s, "_n"):
		s = strings.TrimSuffix(s, "_n") + "_total"
	case strings.HasSuffix(s, "_ns"):
		s = strings.TrimSuffix(s, "_ns") + "_seconds"
	}
	return s
}

func (t *Tracker) register(name string, v iprom) {
	debug.Assert(t.tracker[name] == nil, name)
	if err := t.reg.Register(v.collector()); err != nil {
		nlog.Errorf("failed to register %q: %v", name, err)
	}
	t.tracker[name] = &statsValue{iprom: v}
}

func (t *Tracker) regCounter(name, help string) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: promName(name), Help: help})
	t.register(name, counter{c})
}

func (t *Tracker) regVec(name, help string, labels ...string) {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: promName(name), Help: help}, labels)
	t.register(name, counterVec{c})
}

func (t *Tracker) regGauge(name, help string) {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: promName(name), Help: help})
	t.register(name, gauge{g})
}

func (t *Tracker) regHist(name, help string) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      promName(name),
		Help:      help,
		Buckets:   prometheus.ExponentialBuckets(50e-6, 4, 10),
	})
	t.register(name, histogram{h})
}

func (t *Tracker) get(name string) *statsValue {
	v, ok := t.tracker[name]
	debug.Assertf(ok, "invalid metric name %q", name)
	return v
}

func (t *Tracker) Inc(name string)            { v := t.get(name); v.inc(v) }
func (t *Tracker) Add(name string, val int64) { v := t.get(name); v.add(v, val) }
func (t *Tracker) Set(name string, val int64) { v := t.get(name); v.set(v, val) }
func (t *Tracker) Latency(name string, d time.Duration) {
	v := t.get(name)
	v.observe(v, d.Seconds())
}

// IncWith increments a labeled counter, label values in registration order
func (t *Tracker) IncWith(name string, labels prometheus.Labels) {
	v := t.get(name)
	v.incWith(v, labels)
}

func (t *Tracker) Get(name string) int64 { return ratomic.LoadInt64(&t.get(name).Value) }

// AvgLatency returns the average of all observed latencies
func (t *Tracker) AvgLatency(name string) time.Duration {
	v := t.get(name)
	n := ratomic.LoadInt64(&v.numSamples)
	if n == 0 {
		return 0
	}
	return time.Duration(ratomic.LoadInt64(&v.cumulative) / n)
}

func (t *Tracker) Snapshot() Snap {
	snap := make(Snap, len(t.tracker))
	for name, v := range t.tracker {
		snap[name] = ratomic.LoadInt64(&v.Value)
	}
	return snap
}

// Log writes non-zero values, sorted by name
func (s Snap) Log() {
	names := make([]string, 0, len(s))
	for name, v := range s {
		if v != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatInt(s[name], 10))
	}
	nlog.Infoln("stats:", sb.String())
}
