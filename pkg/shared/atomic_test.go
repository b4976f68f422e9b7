package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Borislavv/atomic-shared/pkg/alloc"
)

func TestAtomic_EmptyEquivalence(t *testing.T) {
	// A default handle and one that stored an empty Ptr are
	// observationally the same.
	a := NewAtomic[int]()
	var empty Ptr[int]
	b := NewAtomic[int]()
	b.Store(&empty)

	pa, pb := a.Load(), b.Load()
	assert.True(t, pa.Empty())
	assert.True(t, pb.Empty())
	assert.True(t, pa.Equal(pb))
	a.Close()
	b.Close()
}

func TestAtomic_SingleThreadRoundTrip(t *testing.T) {
	al := alloc.NewTracking(alloc.NewHeap())

	deleted := 0
	a := NewAtomic[int]()
	p, err := NewWith[int](al, 3, func(*int) { deleted++ })
	require.NoError(t, err)

	a.Store(&p)
	assert.True(t, p.Empty(), "store consumes the handle")

	q := a.Load()
	assert.Equal(t, 3, q.Value())
	assert.GreaterOrEqual(t, q.UseCount(), int64(1))

	q.Release()
	assert.Zero(t, deleted)

	a.Close()
	assert.Equal(t, 1, deleted, "deleter runs exactly once")
	assert.Zero(t, al.Stats().LiveBlocks())
}

func TestAtomic_SwapReturnsPrevious(t *testing.T) {
	al := alloc.NewTracking(alloc.NewHeap())

	a := NewAtomic[int]()
	p10 := MustNew[int](al, 10)
	a.Store(&p10)

	p20 := MustNew[int](al, 20)
	prev := a.Swap(&p20)
	assert.Equal(t, 10, prev.Value())

	cur := a.Load()
	assert.Equal(t, 20, cur.Value())

	prev.Release()
	cur.Release()
	a.Close()
	assert.Zero(t, al.Stats().LiveBlocks())
}

func TestAtomic_CompareAndSwap(t *testing.T) {
	al := alloc.NewTracking(alloc.NewHeap())

	a := NewAtomic[int]()
	p7 := MustNew[int](al, 7)
	a.Store(&p7)

	// Success: expected matches the current referent.
	exp := a.Load()
	des := MustNew[int](al, 8)
	require.True(t, a.CompareAndSwap(&exp, &des))
	assert.True(t, des.Empty(), "desired is consumed on success")
	assert.Equal(t, 7, exp.Value(), "expected is untouched on success")
	exp.Release()

	got := a.Load()
	assert.Equal(t, 8, got.Value())
	got.Release()

	// Failure: the handle moved on; expected captures the mismatch cause.
	exp2 := a.Load()
	des2 := MustNew[int](al, 9)
	p100 := MustNew[int](al, 100)
	a.Store(&p100)

	require.False(t, a.CompareAndSwap(&exp2, &des2))
	assert.Equal(t, 100, exp2.Value(), "expected now holds the conflicting content")
	assert.False(t, des2.Empty(), "desired is kept on failure")

	// The capture holds exactly one reference: the handle's own plus ours.
	assert.Equal(t, int64(2), exp2.UseCount())

	exp2.Release()
	des2.Release()
	a.Close()
	assert.Zero(t, al.Stats().LiveBlocks())
}

func TestAtomic_CompareAndSwapVersioned(t *testing.T) {
	al := alloc.NewTracking(alloc.NewHeap())

	a := NewAtomic[int]()
	p1 := MustNew[int](al, 1)
	a.Store(&p1)

	snap := a.Raw()
	des := MustNew[int](al, 2)
	require.True(t, a.CompareAndSwapVersioned(&snap, &des))

	cur := a.Load()
	assert.Equal(t, 2, cur.Value())
	cur.Release()

	a.Close()
	assert.Zero(t, al.Stats().LiveBlocks())
}

// A stale version-qualified snapshot must fail even when the handle holds
// the same control block again (ABA through a second handle).
func TestAtomic_VersionedCASDefeatsABA(t *testing.T) {
	al := alloc.NewTracking(alloc.NewHeap())

	a := NewAtomic[int]()
	pOrig := MustNew[int](al, 5)
	keep := pOrig.Clone()
	a.Store(&pOrig)

	stale := a.Raw() // (P, v)
	staleVersion := stale.Version()

	// Another writer detours through a different referent and back to P.
	detour := MustNew[int](al, 6)
	a.Store(&detour)
	back := keep.Clone()
	a.Store(&back) // same control block P, version advanced twice

	des := MustNew[int](al, 7)
	assert.False(t, a.CompareAndSwapVersioned(&stale, &des))
	assert.Equal(t, keep.Get(), stale.Get(), "snapshot refreshed to the current word")
	assert.Equal(t, uint8(staleVersion+2), stale.Version(), "two writer wins advanced the version twice")

	des.Release()
	keep.Release()
	a.Close()
	assert.Zero(t, al.Stats().LiveBlocks())
}

func TestAtomic_VersionAdvancesByOnePerWriter(t *testing.T) {
	a := NewAtomic[int]()

	prev := a.Raw().Version()
	for i := 0; i < 300; i++ {
		p := MustNew[int](nil, i)
		a.Store(&p)
		v := a.Raw().Version()
		assert.Equal(t, uint8(prev+1), v, "version must advance by exactly one, mod 256")
		prev = v
	}
	a.Close()
}

func TestAtomic_LoadAndTag(t *testing.T) {
	al := alloc.NewTracking(alloc.NewHeap())

	a := NewAtomic[int]()
	p5 := MustNew[int](al, 5)
	a.Store(&p5)

	prev := a.LoadAndTag()
	assert.Equal(t, 5, prev.Value())
	assert.False(t, prev.Tag(), "the returned handle reflects the pre-tag state")

	snap := a.Load()
	assert.True(t, snap.Tag())
	assert.Equal(t, 5, snap.Value(), "the tag never affects the referent")
	snap.Release()

	// Any writer CAS clears the tag with its version bump.
	p6 := MustNew[int](al, 6)
	a.Store(&p6)
	after := a.Load()
	assert.False(t, after.Tag())
	after.Release()

	prev.Release()
	a.Close()
	assert.Zero(t, al.Stats().LiveBlocks())
}

func TestAtomic_LoadAndTagOnEmpty(t *testing.T) {
	a := NewAtomic[int]()
	prev := a.LoadAndTag()
	assert.True(t, prev.Empty())
	assert.True(t, a.Raw().Tag())
	a.Close()
}

func TestAtomic_UnsafeVariants(t *testing.T) {
	al := alloc.NewTracking(alloc.NewHeap())

	p := MustNew[int](al, 11)
	a := NewAtomicFrom[int](&p)
	require.True(t, p.Empty())

	q := a.UnsafeLoad()
	assert.Equal(t, 11, q.Value())
	q.Release()

	r := MustNew[int](al, 12)
	prev := a.UnsafeSwap(&r)
	assert.Equal(t, 11, prev.Value())
	prev.Release()

	s := MustNew[int](al, 13)
	a.UnsafeStore(&s)
	got := a.UnsafeLoad()
	assert.Equal(t, 13, got.Value())
	got.Release()

	a.Close()
	assert.Zero(t, al.Stats().LiveBlocks())
}
