// Copyright 2025 The flexrc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !flexrc_narrow

// 64-bit counters for the independent scheme (default).
//
// Build with -tags flexrc_narrow to halve the metadata block at the cost of
// a 2^32 handle limit.

package algorithm

import (
	"math"
	"sync/atomic"
)

// Count is the counter word of the independent scheme.
type Count = uint64

const (
	// CountBits is the width of Count.
	CountBits = 64

	// MaxLocalCount is the last value a Local counter may hold.
	MaxLocalCount Count = math.MaxUint64

	// MaxSharedCount leaves the top bit as headroom for racing increments
	// that happen before the overflow check aborts.
	MaxSharedCount Count = math.MaxUint64 >> 1
)

func loadCount(p *Count) Count { return atomic.LoadUint64(p) }
func addCount(p *Count, d Count) Count { return atomic.AddUint64(p, d) }
