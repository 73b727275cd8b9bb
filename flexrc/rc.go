package flexrc

import (
	"errors"
	"reflect"

	"github.com/kolkov/flexrc/internal/rc/algorithm"
)

// ErrDropped is the panic value raised by any method other than Drop called
// on a dropped handle.
var ErrDropped = errors.New("flexrc: use of dropped handle")

// Algorithm is the counting contract of one handle flavor over metadata
// block B. The set of implementations is closed: see the aliases in this
// package.
type Algorithm[B any] = algorithm.Algorithm[B]

// Releaser is implemented by payloads that hold resources beyond memory.
// Release runs exactly once, after the last handle of the record drops.
type Releaser interface {
	Release()
}

// Cloner is implemented by payloads that need a deep copy when a record is
// duplicated (FromRef, IntoOther and ToOther fallbacks).
type Cloner[T any] interface {
	Clone() T
}

// record is the single allocation every handle of a record points at.
// It is never moved or copied once created.
type record[B, T any] struct {
	meta B
	data T
}

// noCopy may be embedded into structs which must not be copied after first
// use. See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// FlexRc is a handle to a reference-counted record.
//
// B is the metadata block of the counting scheme, A the algorithm of this
// handle's flavor and O the algorithm of the complementary flavor. The
// aliases (LocalRc, SharedHybridRc, ...) fix B, A and O.
type FlexRc[B any, A Algorithm[B], O Algorithm[B], T any] struct {
	_   noCopy
	rec *record[B, T]
}

// New allocates a record holding v and returns its first handle.
func New[B any, A Algorithm[B], O Algorithm[B], T any](v T) *FlexRc[B, A, O, T] {
	r := &record[B, T]{data: v}
	var a A
	a.Create(&r.meta)
	stats.recordAlloc()
	return &FlexRc[B, A, O, T]{rec: r}
}

// FromRef allocates a record holding a copy of *v. Payloads implementing
// Cloner are copied with Clone; slices get fresh backing storage.
func FromRef[B any, A Algorithm[B], O Algorithm[B], T any](v *T) *FlexRc[B, A, O, T] {
	return New[B, A, O](clonePayload(v))
}

// Get returns the payload.
func (rc *FlexRc[B, A, O, T]) Get() T {
	return rc.inner().data
}

// GetMut returns a pointer to the payload if this handle is the only
// reference to the record. The pointer must not be used once the handle is
// cloned, converted or dropped.
func (rc *FlexRc[B, A, O, T]) GetMut() (*T, bool) {
	r := rc.inner()
	var a A
	if !a.IsUnique(&r.meta) {
		return nil, false
	}
	return &r.data, true
}

// IsUnique reports whether this handle is the only live handle, of either
// flavor, to the record.
func (rc *FlexRc[B, A, O, T]) IsUnique() bool {
	var a A
	return a.IsUnique(&rc.inner().meta)
}

// Flavor returns the flavor of this handle.
func (rc *FlexRc[B, A, O, T]) Flavor() Flavor {
	var a A
	return a.Flavor()
}

// Clone returns a new handle of the same flavor to the same record.
func (rc *FlexRc[B, A, O, T]) Clone() *FlexRc[B, A, O, T] {
	r := rc.inner()
	var a A
	a.Clone(&r.meta)
	return &FlexRc[B, A, O, T]{rec: r}
}

// Drop gives up this handle. The record is released when this was the last
// handle of either flavor. Dropping a dropped handle is a no-op.
func (rc *FlexRc[B, A, O, T]) Drop() {
	r := rc.rec
	if r == nil {
		return
	}
	rc.rec = nil

	var a A
	if a.Drop(&r.meta) {
		release(r)
	}
}

// Dropped reports whether Drop was called on this handle.
func (rc *FlexRc[B, A, O, T]) Dropped() bool {
	return rc.rec == nil
}

// Same reports whether rc and other point at the same record.
func (rc *FlexRc[B, A, O, T]) Same(other *FlexRc[B, A, O, T]) bool {
	return rc.rec != nil && other != nil && rc.rec == other.rec
}

// SameRecord reports whether rc and other, a handle of the complementary
// flavor, point at the same record.
func (rc *FlexRc[B, A, O, T]) SameRecord(other *FlexRc[B, O, A, T]) bool {
	return rc.rec != nil && other != nil && rc.rec == other.rec
}

// TryIntoOther converts this handle into a handle of the complementary
// flavor over the same record. On success rc is consumed: it behaves as a
// dropped handle without having released its count. On failure rc is
// unchanged and nil, false is returned.
func (rc *FlexRc[B, A, O, T]) TryIntoOther() (*FlexRc[B, O, A, T], bool) {
	r := rc.inner()
	var a A
	if !a.TryIntoOther(&r.meta) {
		stats.recordInto(false)
		return nil, false
	}
	stats.recordInto(true)
	rc.rec = nil
	return &FlexRc[B, O, A, T]{rec: r}, true
}

// IntoOther converts this handle into a handle of the complementary flavor.
// When the counting scheme refuses the conversion, the payload is copied
// into a new record and rc is dropped.
func (rc *FlexRc[B, A, O, T]) IntoOther() *FlexRc[B, O, A, T] {
	if other, ok := rc.TryIntoOther(); ok {
		return other
	}
	other := rc.fallback()
	rc.Drop()
	return other
}

// TryToOther returns an additional handle of the complementary flavor over
// the same record. rc stays valid either way.
func (rc *FlexRc[B, A, O, T]) TryToOther() (*FlexRc[B, O, A, T], bool) {
	r := rc.inner()
	var a A
	if !a.TryToOther(&r.meta) {
		stats.recordTo(false)
		return nil, false
	}
	stats.recordTo(true)
	return &FlexRc[B, O, A, T]{rec: r}, true
}

// ToOther returns a handle of the complementary flavor. When the counting
// scheme refuses, the payload is copied into a new record.
func (rc *FlexRc[B, A, O, T]) ToOther() *FlexRc[B, O, A, T] {
	if other, ok := rc.TryToOther(); ok {
		return other
	}
	return rc.fallback()
}

// fallback copies the payload into a fresh record of the complementary
// flavor.
func (rc *FlexRc[B, A, O, T]) fallback() *FlexRc[B, O, A, T] {
	stats.recordFallback()
	return FromRef[B, O, A](&rc.inner().data)
}

func (rc *FlexRc[B, A, O, T]) inner() *record[B, T] {
	if rc.rec == nil {
		panic(ErrDropped)
	}
	return rc.rec
}

// release finalises a record whose count reached zero.
func release[B, T any](r *record[B, T]) {
	if rel, ok := any(&r.data).(Releaser); ok {
		rel.Release()
	}
	var zero T
	r.data = zero
	stats.recordFree()
}

// clonePayload returns a copy of *v that shares no mutable storage with it.
func clonePayload[T any](v *T) T {
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone()
	}

	rv := reflect.ValueOf(v).Elem()
	if rv.Kind() == reflect.Slice && !rv.IsNil() {
		cp := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(cp, rv)
		return cp.Interface().(T)
	}
	return *v
}
