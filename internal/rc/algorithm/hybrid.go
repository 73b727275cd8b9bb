// Copyright 2025 The flexrc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package algorithm

import (
	"math"
	"sync/atomic"
	"unsafe"
)

const (
	// localPresent is the top bit of the shared word: set while at least one
	// Local handle exists.
	localPresent uint32 = 1 << 31

	// clearLocal masks localPresent off.
	clearLocal = ^localPresent

	// MaxHybridLocal is the last value the local counter may hold.
	MaxHybridLocal uint32 = math.MaxUint32

	// MaxHybridShared is the largest shared count. Bit 30 is headroom for
	// racing increments, bit 31 is localPresent.
	MaxHybridShared uint32 = math.MaxUint32 >> 2
)

// HybridMeta is the metadata block of the hybrid scheme.
//
// Layout: [local:32][shared:32] where the shared word is
//
//	bit 31     local present
//	bit 30     overflow headroom
//	bits 0-29  shared handle count
//
// Both counters live permanently in the same block, so Local and Shared
// handles coexist on one record. The record is alive while the local
// present bit is set or the shared count is non-zero.
//
// The local counter is only ever touched by the goroutine owning the local
// portion; it needs no synchronization.
type HybridMeta struct {
	local  uint32
	shared atomic.Uint32
}

// Layout: two 32-bit words.
var (
	_ [unsafe.Sizeof(HybridMeta{}) - 8]struct{}
	_ [8 - unsafe.Sizeof(HybridMeta{})]struct{}
)

// Counts returns the local count, the shared count and the local present
// bit. Intended for diagnostics only: the local count is read without
// synchronization.
func (m *HybridMeta) Counts() (local, shared uint32, present bool) {
	word := m.shared.Load()
	return m.local, word & clearLocal, word&localPresent != 0
}

func (m *HybridMeta) createLocal() {
	m.local = 1
	m.shared.Store(localPresent)
}

func (m *HybridMeta) createShared() {
	m.local = 0
	m.shared.Store(1)
}

func (m *HybridMeta) localIsUnique() bool {
	return m.local == 1 && m.shared.Load() == localPresent
}

func (m *HybridMeta) sharedIsUnique() bool {
	// Exactly one shared handle and no local present bit.
	return m.shared.Load() == 1
}

func (m *HybridMeta) localClone() {
	old := m.local
	if old == MaxHybridLocal {
		overflow("hybrid", LocalFlavor, uint64(old))
		return
	}
	m.local = old + 1
}

// localDrop clears the present bit when the last Local handle goes and
// reports whether no shared handle was left either.
func (m *HybridMeta) localDrop() bool {
	m.local--
	if m.local != 0 {
		return false
	}
	// The word was exactly localPresent: shared count zero, we were last.
	return m.shared.And(clearLocal) == localPresent
}

func (m *HybridMeta) sharedClone() {
	old := m.shared.Add(1) - 1
	if old&clearLocal > MaxHybridShared {
		overflow("hybrid", SharedFlavor, uint64(old&clearLocal))
	}
}

// sharedDrop reports whether this was the last handle of either flavor.
func (m *HybridMeta) sharedDrop() bool {
	// Previous word 1: present bit clear and we held the only shared count.
	return m.shared.Add(^uint32(0)) == 0
}

// claim sets the local present bit with a single atomic read-modify-write
// and reports whether it was clear before. A load followed by a store would
// let two goroutines both believe they own the local portion.
func (m *HybridMeta) claim() bool {
	return m.shared.Or(localPresent)&localPresent == 0
}

// HybridLocal counts goroutine-confined handles of a HybridMeta record.
type HybridLocal struct{}

var _ Algorithm[HybridMeta] = HybridLocal{}

// Create sets local=1 and only the present bit in the shared word.
func (HybridLocal) Create(m *HybridMeta) { m.createLocal() }

// IsUnique reports one Local handle and no Shared handle.
func (HybridLocal) IsUnique(m *HybridMeta) bool { return m.localIsUnique() }

// Clone increments the local counter without atomics.
func (HybridLocal) Clone(m *HybridMeta) { m.localClone() }

// Drop decrements the local counter; see HybridMeta for the release rule.
func (HybridLocal) Drop(m *HybridMeta) bool { return m.localDrop() }

// TryIntoOther promotes this handle to Shared. It never fails.
func (HybridLocal) TryIntoOther(m *HybridMeta) bool {
	m.sharedClone()
	// Cannot release: the shared count is at least one.
	m.localDrop()
	return true
}

// TryToOther mints an additional Shared handle. It never fails.
func (HybridLocal) TryToOther(m *HybridMeta) bool {
	m.sharedClone()
	return true
}

// Flavor returns LocalFlavor.
func (HybridLocal) Flavor() Flavor { return LocalFlavor }

func (HybridLocal) sealed() {}

// HybridShared counts cross-goroutine handles of a HybridMeta record.
type HybridShared struct{}

var _ Algorithm[HybridMeta] = HybridShared{}

// Create sets the shared count to 1 with no Local handle.
func (HybridShared) Create(m *HybridMeta) { m.createShared() }

// IsUnique reports one Shared handle and no Local handle.
func (HybridShared) IsUnique(m *HybridMeta) bool { return m.sharedIsUnique() }

// Clone atomically increments the shared count.
func (HybridShared) Clone(m *HybridMeta) { m.sharedClone() }

// Drop atomically decrements the shared count; see HybridMeta for the
// release rule.
func (HybridShared) Drop(m *HybridMeta) bool { return m.sharedDrop() }

// TryIntoOther claims the local portion for the calling goroutine and
// turns this handle into a Local one. It fails while another Local handle
// exists.
//
// Without identity tracking the claim cannot tell the owning goroutine from
// any other, so it also fails for the goroutine that already owns the local
// portion. Use the tracked scheme for repeated claims.
func (HybridShared) TryIntoOther(m *HybridMeta) bool {
	if !m.claim() {
		return false
	}
	m.localClone()
	// Cannot release: the present bit is set.
	m.shared.Add(^uint32(0))
	return true
}

// TryToOther claims the local portion and mints an additional Local handle.
func (HybridShared) TryToOther(m *HybridMeta) bool {
	if !m.claim() {
		return false
	}
	m.localClone()
	return true
}

// Flavor returns SharedFlavor.
func (HybridShared) Flavor() Flavor { return SharedFlavor }

func (HybridShared) sealed() {}
