package flexrc

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// probe is a payload that counts its releases.
type probe struct {
	v        int
	released *atomic.Int32
}

func (p *probe) Release() { p.released.Add(1) }

func newProbe(v int) (probe, *atomic.Int32) {
	n := new(atomic.Int32)
	return probe{v: v, released: n}, n
}

// ========================================
// Release exactly once
// ========================================

// TestLocal_SixHandles clones a Local handle five times and drops all six
// handles; the payload is released on the sixth drop only.
func TestLocal_SixHandles(t *testing.T) {
	p, released := newProbe(42)
	rc := NewLocal(p)

	handles := []*LocalRc[probe]{rc}
	for i := 0; i < 5; i++ {
		handles = append(handles, rc.Clone())
	}

	for i, h := range handles {
		assert.Equal(t, 42, h.Get().v)
		h.Drop()
		want := int32(0)
		if i == len(handles)-1 {
			want = 1
		}
		if got := released.Load(); got != want {
			t.Fatalf("after drop %d: released = %d, want %d", i+1, got, want)
		}
	}
}

// TestShared_TwoGoroutines clones and drops a Shared handle from two
// goroutines; the original keeps the payload alive.
func TestShared_TwoGoroutines(t *testing.T) {
	p, released := newProbe(42)
	rc := NewShared(p)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		c := rc.Clone()
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Drop()
		}()
	}
	wg.Wait()

	assert.Equal(t, 42, rc.Get().v)
	assert.Equal(t, int32(0), released.Load())

	rc.Drop()
	assert.Equal(t, int32(1), released.Load())
}

// TestHybrid_ReleaseAfterBothFlavors verifies a hybrid record lives until
// the last handle of either flavor drops.
func TestHybrid_ReleaseAfterBothFlavors(t *testing.T) {
	tests := []struct {
		name        string
		sharedFirst bool
	}{
		{"local last", true},
		{"shared last", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, released := newProbe(7)
			local := NewLocalHybrid(p)
			shared := local.ToOther()
			local2 := local.Clone()

			first, second := []func(){shared.Drop}, []func(){local.Drop, local2.Drop}
			if !tt.sharedFirst {
				first, second = second, first
			}
			for _, drop := range first {
				drop()
			}
			assert.Equal(t, int32(0), released.Load())
			for _, drop := range second {
				drop()
			}
			assert.Equal(t, int32(1), released.Load())
		})
	}
}

// TestShared_ConcurrentStress verifies exactly-once release under heavy
// concurrent clone/drop.
func TestShared_ConcurrentStress(t *testing.T) {
	const (
		goroutines = 16
		iterations = 500
	)

	p, released := newProbe(1)
	rc := NewSharedHybrid(p)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		h := rc.Clone()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer h.Drop()
			for i := 0; i < iterations; i++ {
				c := h.Clone()
				c.Drop()
			}
		}()
	}
	rc.Drop()
	wg.Wait()

	assert.Equal(t, int32(1), released.Load())
}

// ========================================
// Uniqueness and mutation
// ========================================

// TestGetMut_RequiresUnique verifies GetMut succeeds iff the handle is
// unique and that mutations are visible afterwards.
func TestGetMut_RequiresUnique(t *testing.T) {
	rc := NewLocal(10)
	defer rc.Drop()

	p, ok := rc.GetMut()
	require.True(t, ok)
	*p = 11
	assert.Equal(t, 11, rc.Get())

	c := rc.Clone()
	assert.False(t, rc.IsUnique())
	p, ok = rc.GetMut()
	assert.False(t, ok)
	assert.Nil(t, p)

	c.Drop()
	assert.True(t, rc.IsUnique())
	_, ok = rc.GetMut()
	assert.True(t, ok)
}

// TestGetMut_HybridCountsBothFlavors verifies a Shared handle blocks
// mutation through a Local one.
func TestGetMut_HybridCountsBothFlavors(t *testing.T) {
	local := NewLocalHybrid([]int{1, 2})
	defer local.Drop()

	shared := local.ToOther()
	_, ok := local.GetMut()
	assert.False(t, ok)

	shared.Drop()
	_, ok = local.GetMut()
	assert.True(t, ok)
}

// TestDrop_Idempotent verifies dropping twice is harmless and other
// methods panic with ErrDropped.
func TestDrop_Idempotent(t *testing.T) {
	p, released := newProbe(3)
	rc := NewShared(p)
	rc.Drop()
	rc.Drop()

	assert.Equal(t, int32(1), released.Load())
	assert.True(t, rc.Dropped())
	assert.PanicsWithValue(t, ErrDropped, func() { rc.Get() })
	assert.PanicsWithValue(t, ErrDropped, func() { rc.Clone() })
	assert.PanicsWithValue(t, ErrDropped, func() { rc.TryIntoOther() })
}

// TestRelease_ClearsPayload verifies the record drops its payload.
func TestRelease_ClearsPayload(t *testing.T) {
	rc := NewLocal(&struct{ big [1024]byte }{})
	r := rc.rec
	rc.Drop()
	assert.Nil(t, r.data)
}

// ========================================
// Conversion
// ========================================

// TestIndependent_IntoOtherNeedsUnique covers the independent scheme: the
// conversion fails with two handles and succeeds after one drops.
func TestIndependent_IntoOtherNeedsUnique(t *testing.T) {
	rc := NewLocal(42)
	c := rc.Clone()

	other, ok := rc.TryIntoOther()
	require.False(t, ok)
	assert.Nil(t, other)
	assert.False(t, rc.Dropped(), "failed conversion must leave the handle valid")
	assert.Equal(t, 42, rc.Get())

	c.Drop()
	shared, ok := rc.TryIntoOther()
	require.True(t, ok)
	assert.True(t, rc.Dropped(), "successful conversion consumes the source")
	assert.Equal(t, 42, shared.Get())
	assert.Equal(t, SharedFlavor, shared.Flavor())
	assert.True(t, shared.IsUnique())
	shared.Drop()
}

// TestIndependent_ToOtherNeverShares verifies the independent scheme always
// falls back to a copy for ToOther.
func TestIndependent_ToOtherNeverShares(t *testing.T) {
	rc := NewShared([]int{1, 2, 3})
	defer rc.Drop()

	_, ok := rc.TryToOther()
	assert.False(t, ok)

	before := ReadStats()
	local := rc.ToOther()
	defer local.Drop()
	assert.Equal(t, before.Fallbacks+1, ReadStats().Fallbacks)

	assert.False(t, rc.SameRecord(local))
	p, ok := local.GetMut()
	require.True(t, ok)
	(*p)[0] = 100
	assert.Equal(t, []int{1, 2, 3}, rc.Get(), "fallback copy must not share storage")
}

// TestIntoOther_Fallback verifies IntoOther copies the payload when the
// scheme refuses and drops the source handle.
func TestIntoOther_Fallback(t *testing.T) {
	p, released := newProbe(5)
	rc := NewLocal(p)
	keep := rc.Clone()

	shared := rc.IntoOther()
	assert.True(t, rc.Dropped())
	assert.False(t, keep.SameRecord(shared))
	assert.Equal(t, 5, shared.Get().v)
	assert.True(t, keep.IsUnique())

	keep.Drop()
	assert.Equal(t, int32(1), released.Load())
	shared.Drop()
	// The copy shares the counter pointer.
	assert.Equal(t, int32(2), released.Load())
}

// TestRoundTrip_SameRecord converts to the other flavor and back and checks
// the record is unchanged.
func TestRoundTrip_SameRecord(t *testing.T) {
	t.Run("independent", func(t *testing.T) {
		rc := NewLocal("payload")
		r := rc.rec
		shared := rc.IntoOther()
		back := shared.IntoOther()
		defer back.Drop()

		assert.Same(t, r, back.rec)
		assert.Equal(t, "payload", back.Get())
	})
	t.Run("hybrid", func(t *testing.T) {
		rc := NewLocalHybrid("payload")
		r := rc.rec
		shared := rc.IntoOther()
		back, ok := shared.TryIntoOther()
		require.True(t, ok)
		defer back.Drop()

		assert.Same(t, r, back.rec)
		assert.True(t, back.IsUnique())
	})
	t.Run("tracked", func(t *testing.T) {
		rc := NewLocalTracked("payload")
		r := rc.rec
		shared := rc.ToOther()
		back, ok := shared.TryIntoOther()
		require.True(t, ok, "owner may reclaim while holding Local handles")
		defer back.Drop()
		defer rc.Drop()

		assert.Same(t, r, back.rec)
		assert.Equal(t, "payload", back.Get())
	})
}

// TestHybrid_ClaimBlocksOtherGoroutine: goroutine A claims the Local side,
// goroutine B fails to claim until A drops its Local handle.
func TestHybrid_ClaimBlocksOtherGoroutine(t *testing.T) {
	rc := NewSharedHybrid(42)
	defer rc.Drop()

	var (
		claimed = make(chan struct{})
		release = make(chan struct{})
		done    = make(chan struct{})
	)
	a := rc.Clone()
	go func() {
		defer close(done)
		local, ok := a.TryIntoOther()
		if !ok {
			t.Error("goroutine A: claim failed")
			close(claimed)
			return
		}
		close(claimed)
		<-release
		local.Drop()
	}()
	<-claimed

	b := rc.Clone()
	defer b.Drop()
	_, ok := b.TryToOther()
	assert.False(t, ok, "goroutine B must not claim while A holds the Local side")

	close(release)
	<-done

	local, ok := b.TryToOther()
	require.True(t, ok, "claim must succeed once A dropped")
	assert.Equal(t, 42, local.Get())
	local.Drop()
}

// TestTracked_OwnerReclaims verifies the tracked scheme accepts repeated
// claims from the owner and refuses others.
func TestTracked_OwnerReclaims(t *testing.T) {
	local := NewLocalTracked(1)
	defer local.Drop()
	shared := local.ToOther()
	defer shared.Drop()

	for i := 0; i < 3; i++ {
		l, ok := shared.TryToOther()
		require.True(t, ok, "claim %d by owner", i)
		l.Drop()
	}

	var strangerOK bool
	done := make(chan struct{})
	s := shared.Clone()
	go func() {
		defer close(done)
		defer s.Drop()
		_, strangerOK = s.TryToOther()
	}()
	<-done
	assert.False(t, strangerOK)
}

// ========================================
// Construction
// ========================================

type deepPayload struct {
	items []string
}

func (d deepPayload) Clone() deepPayload {
	return deepPayload{items: append([]string(nil), d.items...)}
}

// TestFromRef_UsesCloner verifies FromRef deep-copies Cloner payloads.
func TestFromRef_UsesCloner(t *testing.T) {
	src := deepPayload{items: []string{"a", "b"}}
	rc := FromRef[Meta, Local, Shared](&src)
	defer rc.Drop()

	src.items[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, rc.Get().items)
}

// TestFromRef_CopiesSlice verifies slices get fresh backing storage.
func TestFromRef_CopiesSlice(t *testing.T) {
	src := []int{1, 2, 3}
	rc := FromRef[HybridMeta, HybridShared, HybridLocal](&src)
	defer rc.Drop()

	src[0] = 9
	assert.Equal(t, []int{1, 2, 3}, rc.Get())
}

// TestFlexRc_Same verifies record identity helpers.
func TestFlexRc_Same(t *testing.T) {
	a := NewLocal(1)
	b := a.Clone()
	c := NewLocal(1)
	defer a.Drop()
	defer b.Drop()
	defer c.Drop()

	assert.True(t, a.Same(b))
	assert.False(t, a.Same(c))
	assert.False(t, a.Same(nil))
	assert.False(t, a.SameRecord(nil))
}

// TestStats_Counts verifies allocation, release and conversion counters.
func TestStats_Counts(t *testing.T) {
	before := ReadStats()

	rc := NewLocal(1)
	_, _ = rc.TryToOther()
	shared, _ := rc.TryIntoOther()
	shared.Drop()

	after := ReadStats()
	assert.Equal(t, before.Allocated+1, after.Allocated)
	assert.Equal(t, before.Freed+1, after.Freed)
	assert.Equal(t, before.ToFailed+1, after.ToFailed)
	assert.Equal(t, before.IntoOK+1, after.IntoOK)
	assert.Equal(t, before.Live(), after.Live())
}
