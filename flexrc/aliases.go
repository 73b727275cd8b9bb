package flexrc

import (
	"github.com/kolkov/flexrc/internal/rc/algorithm"
	"github.com/kolkov/flexrc/internal/rc/tid"
)

// Metadata blocks and flavor algorithms of the three counting schemes.
type (
	Meta   = algorithm.Meta
	Local  = algorithm.Local
	Shared = algorithm.Shared

	HybridMeta   = algorithm.HybridMeta
	HybridLocal  = algorithm.HybridLocal
	HybridShared = algorithm.HybridShared

	TrackedMeta   = algorithm.TrackedMeta
	TrackedLocal  = algorithm.TrackedLocal
	TrackedShared = algorithm.TrackedShared
)

// Flavor names the role of a handle.
type Flavor = algorithm.Flavor

const (
	LocalFlavor  = algorithm.LocalFlavor
	SharedFlavor = algorithm.SharedFlavor
)

// Independent scheme: one counter word, a record is all-Local or
// all-Shared.
type (
	LocalRc[T any]  = FlexRc[Meta, Local, Shared, T]
	SharedRc[T any] = FlexRc[Meta, Shared, Local, T]
)

// Hybrid scheme: Local and Shared handles coexist; one claim of the Local
// side at a time.
type (
	LocalHybridRc[T any]  = FlexRc[HybridMeta, HybridLocal, HybridShared, T]
	SharedHybridRc[T any] = FlexRc[HybridMeta, HybridShared, HybridLocal, T]
)

// Tracked scheme: hybrid plus owner identity, so the owning goroutine may
// reclaim the Local side repeatedly.
type (
	LocalTrackedRc[T any]  = FlexRc[TrackedMeta, TrackedLocal, TrackedShared, T]
	SharedTrackedRc[T any] = FlexRc[TrackedMeta, TrackedShared, TrackedLocal, T]
)

// NewLocal returns a Local handle of the independent scheme.
func NewLocal[T any](v T) *LocalRc[T] { return New[Meta, Local, Shared](v) }

// NewShared returns a Shared handle of the independent scheme.
func NewShared[T any](v T) *SharedRc[T] { return New[Meta, Shared, Local](v) }

// NewLocalHybrid returns a Local handle of the hybrid scheme.
func NewLocalHybrid[T any](v T) *LocalHybridRc[T] {
	return New[HybridMeta, HybridLocal, HybridShared](v)
}

// NewSharedHybrid returns a Shared handle of the hybrid scheme.
func NewSharedHybrid[T any](v T) *SharedHybridRc[T] {
	return New[HybridMeta, HybridShared, HybridLocal](v)
}

// NewLocalTracked returns a Local handle of the tracked scheme owned by the
// calling goroutine.
func NewLocalTracked[T any](v T) *LocalTrackedRc[T] {
	return New[TrackedMeta, TrackedLocal, TrackedShared](v)
}

// NewSharedTracked returns a Shared handle of the tracked scheme.
func NewSharedTracked[T any](v T) *SharedTrackedRc[T] {
	return New[TrackedMeta, TrackedShared, TrackedLocal](v)
}

// ReleaseIdentity returns the calling goroutine's tracked-scheme identity to
// the pool. Call it before a goroutine that claimed tracked records exits,
// after dropping its Local handles; otherwise the identity is reclaimed by
// a later sweep.
func ReleaseIdentity() {
	tid.Default().Release()
}
