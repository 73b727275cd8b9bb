// Copyright 2025 The flexrc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package algorithm

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/kolkov/flexrc/internal/rc/tid"
)

// ownerLocked is the spinlock bit of the owner word. Identities never reach
// it (tid.MaxID leaves the top bit free).
const ownerLocked uint64 = 1 << 63

// TrackedMeta is the hybrid block extended with the identity of the
// goroutine owning the local portion.
//
// Layout: [owner:64][local:32][shared:32]
//
// With the owner known, a Shared handle held by the owning goroutine can be
// converted back to Local any number of times while Local handles exist.
type TrackedMeta struct {
	owner  atomic.Uint64
	hybrid HybridMeta
}

var (
	_ [unsafe.Sizeof(TrackedMeta{}) - 16]struct{}
	_ [16 - unsafe.Sizeof(TrackedMeta{})]struct{}
)

// Owner returns the identity of the goroutine that last owned the local
// portion, or tid.NoOwner.
func (m *TrackedMeta) Owner() tid.ID {
	return tid.ID(m.owner.Load() &^ ownerLocked)
}

// Counts is HybridMeta.Counts for the embedded block.
func (m *TrackedMeta) Counts() (local, shared uint32, present bool) {
	return m.hybrid.Counts()
}

// lock spins until the owner word's lock bit is acquired and returns the
// owner identity it guarded.
func (m *TrackedMeta) lock() tid.ID {
	for {
		prev := m.owner.Or(ownerLocked)
		if prev&ownerLocked == 0 {
			return tid.ID(prev)
		}
		runtime.Gosched()
	}
}

// claim makes the calling goroutine the owner of the local portion.
//
// Algorithm:
//  1. Acquire the owner spinlock
//  2. Set the local present bit
//  3. Succeed if the caller already owned the local portion or nobody did;
//     storing the caller's identity releases the lock
//  4. Otherwise restore the previous owner, which releases the lock
func (m *TrackedMeta) claim() bool {
	id := tid.Current()
	prev := m.lock()

	wasPresent := m.hybrid.shared.Or(localPresent)&localPresent != 0
	if prev == id || !wasPresent {
		m.owner.Store(uint64(id))
		return true
	}

	m.owner.Store(uint64(prev))
	return false
}

// TrackedLocal counts goroutine-confined handles of a TrackedMeta record.
type TrackedLocal struct{}

var _ Algorithm[TrackedMeta] = TrackedLocal{}

// Create records the calling goroutine as owner and starts as HybridLocal.
func (TrackedLocal) Create(m *TrackedMeta) {
	m.owner.Store(uint64(tid.Current()))
	m.hybrid.createLocal()
}

// IsUnique reports one Local handle and no Shared handle.
func (TrackedLocal) IsUnique(m *TrackedMeta) bool { return m.hybrid.localIsUnique() }

// Clone increments the local counter without atomics.
func (TrackedLocal) Clone(m *TrackedMeta) { m.hybrid.localClone() }

// Drop decrements the local counter. The owner word is left as is: the
// cleared present bit is what allows the next claim.
func (TrackedLocal) Drop(m *TrackedMeta) bool { return m.hybrid.localDrop() }

// TryIntoOther promotes this handle to Shared. It never fails.
func (TrackedLocal) TryIntoOther(m *TrackedMeta) bool {
	return HybridLocal{}.TryIntoOther(&m.hybrid)
}

// TryToOther mints an additional Shared handle. It never fails.
func (TrackedLocal) TryToOther(m *TrackedMeta) bool {
	return HybridLocal{}.TryToOther(&m.hybrid)
}

// Flavor returns LocalFlavor.
func (TrackedLocal) Flavor() Flavor { return LocalFlavor }

func (TrackedLocal) sealed() {}

// TrackedShared counts cross-goroutine handles of a TrackedMeta record.
type TrackedShared struct{}

var _ Algorithm[TrackedMeta] = TrackedShared{}

// Create starts with no owner and one Shared handle.
func (TrackedShared) Create(m *TrackedMeta) {
	m.owner.Store(uint64(tid.NoOwner))
	m.hybrid.createShared()
}

// IsUnique reports one Shared handle and no Local handle.
func (TrackedShared) IsUnique(m *TrackedMeta) bool { return m.hybrid.sharedIsUnique() }

// Clone atomically increments the shared count.
func (TrackedShared) Clone(m *TrackedMeta) { m.hybrid.sharedClone() }

// Drop atomically decrements the shared count.
func (TrackedShared) Drop(m *TrackedMeta) bool { return m.hybrid.sharedDrop() }

// TryIntoOther turns this handle into a Local one if the calling goroutine
// owns the local portion or nobody does.
func (TrackedShared) TryIntoOther(m *TrackedMeta) bool {
	if !m.claim() {
		return false
	}
	m.hybrid.localClone()
	// Cannot release: the present bit is set.
	m.hybrid.shared.Add(^uint32(0))
	return true
}

// TryToOther mints an additional Local handle under the same rule as
// TryIntoOther.
func (TrackedShared) TryToOther(m *TrackedMeta) bool {
	if !m.claim() {
		return false
	}
	m.hybrid.localClone()
	return true
}

// Flavor returns SharedFlavor.
func (TrackedShared) Flavor() Flavor { return SharedFlavor }

func (TrackedShared) sealed() {}
