package flexrc

import (
	"math"
	"reflect"
	"runtime"
	"strconv"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inRecord reports whether p lies within size bytes after the record start.
func inRecord[B, T any](r *record[B, T], p unsafe.Pointer, size uintptr) bool {
	start := uintptr(unsafe.Pointer(r))
	return uintptr(p) >= start && uintptr(p) < start+size
}

// TestFromSlice_SingleAllocation verifies pointer-free elements live right
// after the record header.
func TestFromSlice_SingleAllocation(t *testing.T) {
	src := []int32{1, 2, 3, 4, 5}
	rc := FromSlice[Meta, Local, Shared](src)
	defer rc.Drop()

	got := rc.Get()
	require.Equal(t, src, got)

	hdr := unsafe.Sizeof(record[Meta, []int32]{})
	assert.Equal(t, uintptr(unsafe.Pointer(rc.rec))+alignUp(hdr, unsafe.Alignof(int32(0))),
		uintptr(unsafe.Pointer(unsafe.SliceData(got))), "elements must follow the header")

	src[0] = 99
	assert.Equal(t, int32(1), rc.Get()[0], "source must be copied")
}

// TestFromSlice_PointerElements verifies elements holding pointers survive
// garbage collection.
func TestFromSlice_PointerElements(t *testing.T) {
	src := make([]string, 64)
	for i := range src {
		src[i] = "item-" + strconv.Itoa(i)
	}
	rc := FromSlice[HybridMeta, HybridShared, HybridLocal](src)
	defer rc.Drop()
	src = nil

	runtime.GC()
	runtime.GC()

	got := rc.Get()
	require.Len(t, got, 64)
	for i, s := range got {
		if want := "item-" + strconv.Itoa(i); s != want {
			t.Fatalf("element %d = %q, want %q", i, s, want)
		}
	}
	assert.True(t, inRecord(rc.rec, unsafe.Pointer(unsafe.SliceData(got)), 4096))
}

// TestNewSlice_ZeroedAndMutable verifies NewSlice returns zeroed elements
// that can be filled while unique.
func TestNewSlice_ZeroedAndMutable(t *testing.T) {
	rc := NewSlice[TrackedMeta, TrackedLocal, TrackedShared, uint64](8)
	defer rc.Drop()

	p, ok := rc.GetMut()
	require.True(t, ok)
	for i, v := range *p {
		assert.Zero(t, v, "element %d", i)
		(*p)[i] = uint64(i * i)
	}
	assert.Equal(t, []uint64{0, 1, 4, 9, 16, 25, 36, 49}, rc.Get())
}

// TestNewSlice_EdgeLengths covers empty and zero-size element slices.
func TestNewSlice_EdgeLengths(t *testing.T) {
	empty := NewSlice[Meta, Shared, Local, int](0)
	defer empty.Drop()
	assert.Empty(t, empty.Get())

	zeroSize := NewSlice[Meta, Shared, Local, struct{}](10)
	defer zeroSize.Drop()
	assert.Len(t, zeroSize.Get(), 10)

	assert.Panics(t, func() { NewSlice[Meta, Shared, Local, int](-1) })
}

// TestTailLen verifies tail lengths round up to powers of two.
func TestTailLen(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 0}, {1, 1}, {2, 2}, {3, 4}, {4, 4}, {5, 8}, {1000, 1024}, {1 << 20, 1 << 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tailLen(tt.n), "tailLen(%d)", tt.n)
	}
}

// TestNewSlice_PointerElementsCapped verifies the unused tail of a rounded
// allocation is not reachable through the slice.
func TestNewSlice_PointerElementsCapped(t *testing.T) {
	rc := NewSlice[Meta, Local, Shared, *int](5)
	defer rc.Drop()

	got := rc.Get()
	assert.Len(t, got, 5)
	assert.Equal(t, 5, cap(got))
	assert.True(t, inRecord(rc.rec, unsafe.Pointer(unsafe.SliceData(got)), 4096))
}

// TestNewSlice_ManyLengthsBoundedHeap verifies records of many distinct
// lengths with pointer elements leave no heap behind once dropped.
func TestNewSlice_ManyLengthsBoundedHeap(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates thousands of records")
	}
	const lengths = 10000

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	for n := 1; n <= lengths; n++ {
		rc := NewSlice[Meta, Local, Shared, *int](n)
		p, ok := rc.GetMut()
		require.True(t, ok)
		(*p)[n-1] = &n
		rc.Drop()
	}
	runtime.GC()
	runtime.ReadMemStats(&after)

	var grown uint64
	if after.HeapInuse > before.HeapInuse {
		grown = after.HeapInuse - before.HeapInuse
	}
	assert.Less(t, grown, uint64(8<<20), "heap grew by %d bytes", grown)
}

// TestNewSlice_Overflow verifies impossible sizes panic before allocating.
func TestNewSlice_Overflow(t *testing.T) {
	assert.Panics(t, func() {
		NewSlice[Meta, Local, Shared, [1 << 20]byte](math.MaxInt)
	})
}

// TestFromString verifies text payloads are copied into the record.
func TestFromString(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"ascii", "hello, flexrc"},
		{"utf8", "héllo wörld ✓"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := FromString[HybridMeta, HybridLocal, HybridShared](tt.in)
			defer rc.Drop()

			assert.Equal(t, tt.in, rc.Get())
			if tt.in != "" {
				size := unsafe.Sizeof(record[HybridMeta, string]{}) + uintptr(len(tt.in))
				assert.True(t, inRecord(rc.rec, unsafe.Pointer(unsafe.StringData(rc.Get())), size))
			}
		})
	}
}

// TestFromString_ConvertsWithoutCopy verifies a string record converts
// flavors in place.
func TestFromString_ConvertsWithoutCopy(t *testing.T) {
	rc := FromString[Meta, Local, Shared]("shared text")
	r := rc.rec
	shared := rc.IntoOther()
	defer shared.Drop()

	assert.Same(t, r, shared.rec)
	assert.Equal(t, "shared text", shared.Get())
}

// TestHasPointers verifies the pointer classification used for layouts.
func TestHasPointers(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"int", 0, false},
		{"array of float", [4]float64{}, false},
		{"plain struct", struct{ a, b int }{}, false},
		{"empty pointer array", [0]*int{}, false},
		{"string", "", true},
		{"pointer", (*int)(nil), true},
		{"struct with slice", struct{ s []byte }{}, true},
		{"array of maps", [2]map[int]int{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasPointers(reflect.TypeOf(tt.v)); got != tt.want {
				t.Errorf("hasPointers(%T) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}
