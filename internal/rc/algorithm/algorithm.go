// Copyright 2025 The flexrc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package algorithm implements the counting metadata embedded in every
// flexrc record.
//
// A scheme is one physical metadata block type plus two flavor algorithms
// operating on it:
//
//	Scheme        Block        Local flavor   Shared flavor
//	independent   Meta         Local          Shared
//	hybrid        HybridMeta   HybridLocal    HybridShared
//	tracked       TrackedMeta  TrackedLocal   TrackedShared
//
// Both flavors of a pair work on the same block type, so a record never
// changes type when a handle changes flavor: conversion is decided entirely
// by the algorithms below and the container only swaps the handle's flavor
// parameter.
//
// # Memory ordering
//
// All sync/atomic operations in Go are sequentially consistent. Shared
// increments, decrements and uniqueness loads therefore already provide the
// release/acquire hand-off that guarantees every other goroutine's payload
// writes are visible before the final Drop reports zero.
//
// # Fatal paths
//
// A counter reaching its representable maximum calls rclog.Abort. Continuing
// would wrap the counter and free a record with live handles.
package algorithm

import (
	"go.uber.org/zap"

	"github.com/kolkov/flexrc/internal/rc/rclog"
)

// Flavor names the role of a handle.
type Flavor uint8

const (
	// LocalFlavor handles are confined to one goroutine.
	LocalFlavor Flavor = iota + 1
	// SharedFlavor handles may be used from any goroutine.
	SharedFlavor
)

// String returns "local" or "shared".
func (f Flavor) String() string {
	switch f {
	case LocalFlavor:
		return "local"
	case SharedFlavor:
		return "shared"
	default:
		return "unknown"
	}
}

// Algorithm is the counting contract one flavor implements over block B.
//
// Implementations are zero-size types; the container calls them on their
// zero value. The unexported method seals the set to the pairs defined in
// this package.
type Algorithm[B any] interface {
	// Create initialises b as one live handle of this flavor and zero of
	// the complementary flavor.
	Create(b *B)

	// IsUnique reports whether exactly one live handle, over both flavors,
	// references the record.
	IsUnique(b *B) bool

	// Clone registers one more handle of this flavor.
	Clone(b *B)

	// Drop unregisters one handle of this flavor and reports whether the
	// combined count reached zero. The caller must then release the record.
	Drop(b *B) bool

	// TryIntoOther transfers this handle's claim to one new handle of the
	// complementary flavor. On failure b is left untouched.
	TryIntoOther(b *B) bool

	// TryToOther registers one new handle of the complementary flavor while
	// this handle stays valid. On failure b is left untouched.
	TryToOther(b *B) bool

	// Flavor returns the flavor this algorithm counts.
	Flavor() Flavor

	sealed()
}

// overflow aborts the process on a saturated counter.
func overflow(scheme string, f Flavor, count uint64) {
	rclog.Abort("flexrc: reference count overflow",
		zap.String("scheme", scheme),
		zap.Stringer("flavor", f),
		zap.Uint64("count", count))
}
