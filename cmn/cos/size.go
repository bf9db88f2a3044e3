// Package cos provides common low-level types and utilities for all raidio packages
/*
 * Copyright (c) 2022-2026, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import "strconv"

// IEC (binary) units
const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
	TiB = 1024 * GiB
)

func ToSizeIEC(b int64, digits int) string {
	switch {
	case b >= TiB:
		return strconv.FormatFloat(float64(b)/TiB, 'f', digits, 64) + "TiB"
	case b >= GiB:
		return strconv.FormatFloat(float64(b)/GiB, 'f', digits, 64) + "GiB"
	case b >= MiB:
		return strconv.FormatFloat(float64(b)/MiB, 'f', digits, 64) + "MiB"
	case b >= KiB:
		return strconv.FormatFloat(float64(b)/KiB, 'f', digits, 64) + "KiB"
	default:
		return strconv.FormatInt(b, 10) + "B"
	}
}

func DivCeil(a, b int64) int64 {
	d, r := a/b, a%b
	if r > 0 {
		return d + 1
	}
	return d
}
