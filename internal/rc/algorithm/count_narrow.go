// Copyright 2025 The flexrc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build flexrc_narrow

// 32-bit counters for the independent scheme.

package algorithm

import (
	"math"
	"sync/atomic"
)

// Count is the counter word of the independent scheme.
type Count = uint32

const (
	// CountBits is the width of Count.
	CountBits = 32

	// MaxLocalCount is the last value a Local counter may hold.
	MaxLocalCount Count = math.MaxUint32

	// MaxSharedCount leaves the top bit as headroom for racing increments
	// that happen before the overflow check aborts.
	MaxSharedCount Count = math.MaxUint32 >> 1
)

func loadCount(p *Count) Count { return atomic.LoadUint32(p) }
func addCount(p *Count, d Count) Count { return atomic.AddUint32(p, d) }
