// Copyright 2025 The flexrc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package algorithm

import "unsafe"

// Meta is the metadata block of the independent-counter scheme.
//
// It holds a single counter word. A record is exclusively Local or
// exclusively Shared at any time:
//   - Local handles access the word with plain loads and stores
//   - Shared handles access it with sync/atomic
//
// Switching a record between the two representations requires uniqueness,
// otherwise another handle could keep using the stale representation.
type Meta struct {
	count Count
}

// Layout: the block is exactly one counter word for both flavors.
var (
	_ [unsafe.Sizeof(Meta{}) - unsafe.Sizeof(Count(0))]struct{}
	_ [unsafe.Sizeof(Count(0)) - unsafe.Sizeof(Meta{})]struct{}
)

// Count returns the current counter value. Intended for diagnostics only.
func (m *Meta) Count() Count {
	return loadCount(&m.count)
}

// Local counts goroutine-confined handles of a Meta record.
type Local struct{}

var _ Algorithm[Meta] = Local{}

// Create sets the counter to 1.
func (Local) Create(m *Meta) { m.count = 1 }

// IsUnique reports whether the counter is 1.
func (Local) IsUnique(m *Meta) bool { return m.count == 1 }

// Clone increments the counter, aborting at MaxLocalCount.
func (Local) Clone(m *Meta) {
	old := m.count
	if old == MaxLocalCount {
		overflow("independent", LocalFlavor, uint64(old))
		return
	}
	m.count = old + 1
}

// Drop decrements the counter and reports whether it reached zero.
func (Local) Drop(m *Meta) bool {
	m.count--
	return m.count == 0
}

// TryIntoOther re-initialises the record as Shared when this is the only
// handle.
func (Local) TryIntoOther(m *Meta) bool {
	if m.count != 1 {
		return false
	}
	m.count = 1
	return true
}

// TryToOther always fails: a record cannot be Local and Shared at once.
func (Local) TryToOther(*Meta) bool { return false }

// Flavor returns LocalFlavor.
func (Local) Flavor() Flavor { return LocalFlavor }

func (Local) sealed() {}

// Shared counts cross-goroutine handles of a Meta record.
type Shared struct{}

var _ Algorithm[Meta] = Shared{}

// Create sets the counter to 1. The record is not yet visible to any other
// goroutine, so a plain store suffices.
func (Shared) Create(m *Meta) { m.count = 1 }

// IsUnique reports whether the counter is 1.
//
// The load is atomic so that a true result also orders every payload write
// made through handles that have since been dropped before the caller's
// exclusive access.
func (Shared) IsUnique(m *Meta) bool { return loadCount(&m.count) == 1 }

// Clone increments the counter, aborting past MaxSharedCount.
func (Shared) Clone(m *Meta) {
	old := addCount(&m.count, 1) - 1
	if old > MaxSharedCount {
		overflow("independent", SharedFlavor, uint64(old))
	}
}

// Drop decrements the counter and reports whether it reached zero.
func (Shared) Drop(m *Meta) bool {
	return addCount(&m.count, ^Count(0)) == 0
}

// TryIntoOther re-initialises the record as Local when this is the only
// handle.
func (Shared) TryIntoOther(m *Meta) bool {
	if loadCount(&m.count) != 1 {
		return false
	}
	m.count = 1
	return true
}

// TryToOther always fails: a record cannot be Shared and Local at once.
func (Shared) TryToOther(*Meta) bool { return false }

// Flavor returns SharedFlavor.
func (Shared) Flavor() Flavor { return SharedFlavor }

func (Shared) sealed() {}
