// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

import (
	"fmt"
)

type Algorithm uint8

const (
	AlgRead           Algorithm = iota // host read; lba stamps validated
	AlgVerifyRead                      // host read with mandatory checksum validation
	AlgRecoveryVerify                  // nested: corrective re-read of whole rows
	AlgDegradedRead                    // nested: single-parity reconstruction of a dead member
)

var algText = [...]string{"read", "verify-read", "recovery-verify", "degraded-read"}

func (a Algorithm) String() string {
	if int(a) < len(algText) {
		return algText[a]
	}
	return fmt.Sprintf("alg(%d)", a)
}

func (a Algorithm) nested() bool { return a >= AlgRecoveryVerify }

// ParseAlgorithm is the inverse of Algorithm.String for host algorithms
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "", "read":
		return AlgRead, nil
	case "verify-read", "verify":
		return AlgVerifyRead, nil
	}
	return 0, fmt.Errorf("invalid host read algorithm %q", s)
}

type Priority uint8

const (
	PrioLow Priority = iota
	PrioNormal
	PrioHigh
	PrioUrgent

	numPrio = int(PrioUrgent) + 1
)

var prioText = [...]string{"low", "normal", "high", "urgent"}

func (p Priority) String() string {
	if int(p) < len(prioText) {
		return prioText[p]
	}
	return fmt.Sprintf("prio(%d)", p)
}

func ParsePriority(s string) (Priority, error) {
	for i, t := range prioText {
		if s == t {
			return Priority(i), nil
		}
	}
	if s == "" {
		return PrioNormal, nil
	}
	return 0, fmt.Errorf("invalid priority %q", s)
}

// Status is the terminal outcome of a siots or a host request; the last two
// values only ever travel from a nested siots to its parent.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusMediaError
	StatusShutdown
	StatusAborted
	StatusDropped
	StatusInternal

	statusNotReady
	statusIOFailed
)

var statusText = [...]string{"success", "media-error", "shutdown", "aborted", "dropped", "internal", "not-ready", "io-failed"}

func (s Status) String() string {
	if int(s) < len(statusText) {
		return statusText[s]
	}
	return fmt.Sprintf("status(%d)", s)
}

// ParseStatus accepts the terminal statuses of host requests
func ParseStatus(s string) (Status, error) {
	for i, t := range statusText[:StatusInternal+1] {
		if s == t {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("invalid status %q", s)
}

// severity orders failures when a host request aggregates its siots
func (s Status) severity() int {
	switch s {
	case StatusInternal:
		return 5
	case StatusAborted:
		return 4
	case StatusShutdown:
		return 3
	case StatusDropped:
		return 2
	case StatusMediaError:
		return 1
	}
	return 0
}

// DriveStatus is the completion status of a single drive read
type DriveStatus uint8

const (
	DriveSuccess DriveStatus = iota
	DriveDead
	DriveRetryable
	DriveMediaError
	DriveDropped
	DriveAborted
)

var driveText = [...]string{"success", "dead", "retryable", "media-error", "dropped", "aborted"}

func (s DriveStatus) String() string {
	if int(s) < len(driveText) {
		return driveText[s]
	}
	return fmt.Sprintf("drive(%d)", s)
}

type (
	// Region of logical blocks
	Region struct {
		LBA    uint64 `json:"lba" yaml:"lba"`
		Blocks int    `json:"blocks" yaml:"blocks"`
	}
	// Result of a host request; Data holds Blocks*parity.PayloadSize bytes on success,
	// LBA the lowest unrecoverable block on media error.
	Result struct {
		Err    error
		Data   []byte
		LBA    uint64
		Status Status
	}
)

func (r Region) End() uint64 { return r.LBA + uint64(r.Blocks) }

func (r Region) String() string { return fmt.Sprintf("[%d, +%d)", r.LBA, r.Blocks) }

func (r Region) contains(lba uint64) bool { return lba >= r.LBA && lba < r.End() }
