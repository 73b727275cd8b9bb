// Copyright 2025 The flexrc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tid issues small dense integer identities to goroutines.
//
// The tracked hybrid metadata block stores the identity of the goroutine
// that owns a record's local portion in a single atomic word, next to a
// spinlock bit. Raw goroutine IDs are unbounded, so each goroutine that
// needs an identity is given one from a recycled pool instead.
//
// Identities are issued lazily (on the first Current call of a goroutine)
// and returned when the goroutine terminates. Go has no goroutine exit hook,
// so termination is detected by sweeping the live goroutine set:
//   - every cleanupInterval issues, in the background
//   - synchronously, when the identity space is exhausted
//   - eagerly, when a goroutine calls Release before exiting
//
// Thread Safety: all methods are safe for concurrent use.
package tid

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kolkov/flexrc/internal/rc/goid"
	"github.com/kolkov/flexrc/internal/rc/rclog"
)

// ID is a goroutine identity issued by a Tracker.
type ID uint64

const (
	// NoOwner is the sentinel stored in an owner field nobody holds.
	// It is never issued.
	NoOwner ID = 0

	// MaxID is reserved: the issue counter wraps back to 1 when it gets
	// there. It leaves the top bit of a 64-bit word free for a lock flag.
	MaxID ID = ^ID(0) >> 1

	// cleanupInterval is the number of issues between background sweeps.
	cleanupInterval = 1000
)

// Tracker issues and recycles goroutine identities.
type Tracker struct {
	// mu protects counter, seq and issued.
	mu      sync.Mutex
	counter ID
	seq     uint64
	issued  map[ID]int64 // identity -> goroutine ID

	// max is the exclusive upper bound of issued identities.
	max ID

	// byGID caches the identity of every goroutine that asked for one.
	// Key: int64 (goroutine ID), Value: binding.
	byGID sync.Map

	// issues counts issue operations to trigger periodic sweeps.
	issues atomic.Uint32
}

// binding is an issued identity and the issue sequence number it got.
// Sweep only reclaims bindings issued before it listed the live goroutines.
type binding struct {
	id  ID
	seq uint64
}

var (
	defaultTracker *Tracker
	defaultOnce    sync.Once
)

// New creates a tracker issuing identities in [1, max).
// A max below 2 is raised to 2 so at least one identity exists.
func New(max ID) *Tracker {
	if max < 2 {
		max = 2
	}
	return &Tracker{
		issued: make(map[ID]int64),
		max:    max,
	}
}

// Default returns the process-wide tracker, creating it on first use.
func Default() *Tracker {
	defaultOnce.Do(func() {
		defaultTracker = New(MaxID)
	})
	return defaultTracker
}

// Current returns the calling goroutine's identity from the default tracker.
func Current() ID {
	return Default().Current()
}

// Current returns the calling goroutine's identity, issuing one on first use.
//
// Performance:
//   - cached: ~1µs (goroutine ID extraction + sync.Map load)
//   - first call per goroutine: adds a mutex-protected issue
func (t *Tracker) Current() ID {
	gid := goid.Current()
	if v, ok := t.byGID.Load(gid); ok {
		return v.(binding).id
	}

	b := t.issue(gid)
	if b.id == NoOwner {
		// Every identity is held. Reclaim the ones of dead goroutines and retry.
		t.Sweep()
		if b = t.issue(gid); b.id == NoOwner {
			rclog.Abort("flexrc: goroutine identity space exhausted",
				zap.Uint64("max", uint64(t.max)), zap.Int("issued", t.Len()))
			return NoOwner
		}
	}

	t.byGID.Store(gid, b)
	t.maybeSweep()
	return b.id
}

// Release returns the calling goroutine's identity to the pool.
//
// Goroutines that claimed tracked records and are about to exit may call it
// to make their identity reusable without waiting for a sweep. The
// goroutine must not hold Local handles of tracked records afterwards.
func (t *Tracker) Release() {
	gid := goid.Current()
	if v, ok := t.byGID.LoadAndDelete(gid); ok {
		t.free(v.(binding).id)
	}
}

// Sweep reclaims the identities of terminated goroutines and returns how
// many were returned to the pool.
//
// A goroutine missing from the live list may simply have started after the
// list was taken. Only bindings issued before the list was taken are
// candidates, since their goroutines existed when it was.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	cutoff := t.seq
	t.mu.Unlock()

	live := goid.Live()
	liveSet := make(map[int64]struct{}, len(live))
	for _, gid := range live {
		liveSet[gid] = struct{}{}
	}

	reclaimed := 0
	t.byGID.Range(func(key, value any) bool {
		gid := key.(int64)
		if _, alive := liveSet[gid]; alive {
			return true
		}
		b := value.(binding)
		if b.seq > cutoff {
			return true
		}
		if t.byGID.CompareAndDelete(gid, value) {
			t.free(b.id)
			reclaimed++
		}
		return true
	})

	if reclaimed > 0 {
		rclog.Logger().Debug("goroutine identities reclaimed",
			zap.Int("reclaimed", reclaimed), zap.Int("live", len(live)))
	}
	return reclaimed
}

// Len returns the number of identities currently issued.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.issued)
}

// issue hands out the next free identity to goroutine gid.
//
// Algorithm:
//  1. Advance the counter, wrapping from max back to 1 (NoOwner is skipped)
//  2. Re-probe while the candidate is still issued
//  3. Record the candidate as issued under the next sequence number
//
// Returns a binding to NoOwner when a full cycle found no free identity.
func (t *Tracker) issue(gid int64) binding {
	t.mu.Lock()
	defer t.mu.Unlock()

	for probes := ID(1); probes < t.max; probes++ {
		t.counter++
		if t.counter >= t.max {
			t.counter = 1
		}
		if _, taken := t.issued[t.counter]; taken {
			continue
		}
		t.issued[t.counter] = gid
		t.seq++
		rclog.Logger().Debug("goroutine identity issued",
			zap.Uint64("id", uint64(t.counter)), zap.Int64("goroutine", gid))
		return binding{id: t.counter, seq: t.seq}
	}
	return binding{}
}

// free removes id from the issued set.
func (t *Tracker) free(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.issued, id)
}

// maybeSweep triggers a background sweep every cleanupInterval issues.
func (t *Tracker) maybeSweep() {
	if t.issues.Add(1)%cleanupInterval == 0 {
		go t.Sweep()
	}
}
