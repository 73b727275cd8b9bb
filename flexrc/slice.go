package flexrc

import (
	"fmt"
	"math"
	"math/bits"
	"reflect"
	"unsafe"
)

// FromSlice allocates a record holding a copy of s. Metadata, slice header
// and elements share one allocation.
func FromSlice[B any, A Algorithm[B], O Algorithm[B], E any](s []E) *FlexRc[B, A, O, []E] {
	r := allocSlice[B, E](len(s))
	copy(r.data, s)
	return newFromRecord[B, A, O](r)
}

// NewSlice allocates a record holding n zero elements. The elements are
// filled through GetMut while the handle is unique.
func NewSlice[B any, A Algorithm[B], O Algorithm[B], E any](n int) *FlexRc[B, A, O, []E] {
	return newFromRecord[B, A, O](allocSlice[B, E](n))
}

// FromString allocates a record holding a copy of s. Metadata, string
// header and bytes share one allocation.
//
// Text payloads only enter a record through FromString: a []byte record
// built with FromSlice is never exposed as a string.
func FromString[B any, A Algorithm[B], O Algorithm[B]](s string) *FlexRc[B, A, O, string] {
	n := len(s)
	if n == 0 {
		return New[B, A, O]("")
	}

	base, tail := allocRaw(unsafe.Sizeof(record[B, string]{}), 1, n)
	copy(unsafe.Slice((*byte)(tail), n), s)

	r := (*record[B, string])(base)
	r.data = unsafe.String((*byte)(tail), n)
	return newFromRecord[B, A, O](r)
}

func newFromRecord[B any, A Algorithm[B], O Algorithm[B], T any](r *record[B, T]) *FlexRc[B, A, O, T] {
	var a A
	a.Create(&r.meta)
	stats.recordAlloc()
	return &FlexRc[B, A, O, T]{rec: r}
}

// allocSlice returns a zeroed record whose data field covers n trailing
// elements of the same allocation.
//
// Layout: [meta B][data []E][pad][E0 E1 ... En-1]
//
// Element types without pointers are placed in a raw word buffer sized from
// the element's size and alignment. Element types with pointers need the GC
// to see the trailing elements, so the layout is described to the runtime
// with reflect.StructOf. The runtime keeps every such type forever, so the
// tail is sized by tailLen and only its first n elements are used.
func allocSlice[B, E any](n int) *record[B, []E] {
	if n < 0 {
		panic(fmt.Sprintf("flexrc: negative slice length %d", n))
	}

	var e E
	esz := unsafe.Sizeof(e)
	if n == 0 || esz == 0 {
		return &record[B, []E]{data: make([]E, n)}
	}

	et := reflect.TypeFor[E]()
	if !hasPointers(et) {
		off := alignUp(unsafe.Sizeof(record[B, []E]{}), unsafe.Alignof(e))
		base, tail := allocRaw(off, esz, n)
		r := (*record[B, []E])(base)
		r.data = unsafe.Slice((*E)(tail), n)
		return r
	}

	if uintptr(n) > maxAlloc/esz {
		panic(fmt.Sprintf("flexrc: slice of %d %s elements exceeds the address space", n, et))
	}
	c := tailLen(n)
	if uintptr(c) > maxAlloc/esz {
		c = n
	}
	st := reflect.StructOf([]reflect.StructField{
		{Name: "Meta", Type: reflect.TypeFor[B]()},
		{Name: "Data", Type: reflect.TypeFor[[]E]()},
		{Name: "Tail", Type: reflect.ArrayOf(c, et)},
	})
	base := reflect.New(st).UnsafePointer()
	r := (*record[B, []E])(base)
	r.data = unsafe.Slice((*E)(unsafe.Add(base, st.Field(2).Offset)), n)
	return r
}

// tailLen rounds n up to the next power of two, which bounds the number of
// distinct record types built for an element type.
func tailLen(n int) int {
	if n <= 1 {
		return n
	}
	return 1 << bits.Len(uint(n-1))
}

// maxAlloc bounds a single allocation; larger requests fail the way the
// runtime would, before the size computation can wrap.
const maxAlloc = uintptr(math.MaxInt)

// allocRaw allocates a zeroed, word-aligned buffer holding a header of off
// bytes followed by n elements of size esz. It returns the buffer start and
// the start of the element region.
func allocRaw(off, esz uintptr, n int) (base, tail unsafe.Pointer) {
	if uintptr(n) > (maxAlloc-off)/esz {
		panic(fmt.Sprintf("flexrc: allocation of %d elements of %d bytes overflows", n, esz))
	}
	total := off + esz*uintptr(n)
	words := make([]uint64, (total+7)/8)
	base = unsafe.Pointer(unsafe.SliceData(words))
	return base, unsafe.Add(base, off)
}

func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// hasPointers reports whether values of t contain pointers the GC must
// trace.
func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Slice,
		reflect.String, reflect.Chan, reflect.Func, reflect.Interface:
		return true
	default:
		return false
	}
}
