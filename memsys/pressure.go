// Package memsys provides sector buffer allocation for the RAID read path:
// a slab of fixed-size reusable buffers fronted by a budgeted pool that
// grants, defers, or refuses requests.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

// memory _pressure_

const (
	PressureLow = iota
	PressureModerate
	PressureHigh
	PressureExtreme
	OOM // budget exhausted, requests queue up
)

const highLowThreshold = 40

var memPressureText = map[int]string{
	PressureLow:      "low",
	PressureModerate: "moderate",
	PressureHigh:     "high",
	PressureExtreme:  "extreme",
	OOM:              "OOM",
}

func PressureText(p int) string { return memPressureText[p] }

// Pressure estimates budget pressure from the ratio of free to total sectors
// and the number of deferred requests
func (p *Pool) Pressure() int {
	p.mu.Lock()
	used, waiters := p.used, len(p.waiters)
	p.mu.Unlock()
	free := p.max - used
	switch {
	case waiters > 0 || free <= 0:
		return OOM
	case free*100 < p.max*5:
		return PressureExtreme
	case free*100 < p.max*highLowThreshold/2:
		return PressureHigh
	case free*100 < p.max*highLowThreshold:
		return PressureModerate
	}
	return PressureLow
}
