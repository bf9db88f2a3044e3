// Package raid implements the read path of a parity RAID group: per-stripe
// sub-requests driven by a cooperative state machine that survives retryable
// drive errors, media errors, dead members, and silent corruption.
/*
 * Copyright (c) 2018-2026, NVIDIA CORPORATION. All rights reserved.
 */
package raid

import (
	"fmt"

	"github.com/pkg/errors"
)

type (
	ErrMedia struct {
		LBA uint64
	}
	ErrInternal struct {
		what string
	}
)

var (
	ErrShutdown = errors.New("raid group shutdown: dead members exceed redundancy")
	ErrAborted  = errors.New("read aborted")
	ErrDropped  = errors.New("read dropped")
)

func (e *ErrMedia) Error() string { return fmt.Sprintf("unrecoverable media error at lba %d", e.LBA) }

func NewErrInternal(format string, a ...any) *ErrInternal {
	return &ErrInternal{what: fmt.Sprintf(format, a...)}
}

func (e *ErrInternal) Error() string { return "internal error: " + e.what }

func IsErrMedia(err error) bool {
	var e *ErrMedia
	return errors.As(err, &e)
}

func IsErrInternal(err error) bool {
	var e *ErrInternal
	return errors.As(err, &e)
}

func statusErr(st Status, lba uint64) error {
	switch st {
	case StatusSuccess:
		return nil
	case StatusMediaError:
		return &ErrMedia{LBA: lba}
	case StatusShutdown:
		return ErrShutdown
	case StatusAborted:
		return ErrAborted
	case StatusDropped:
		return ErrDropped
	}
	return NewErrInternal("terminal status %s", st)
}
