package shared

import (
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Borislavv/atomic-shared/pkg/alloc"
)

func TestPtr_EmptyZeroValue(t *testing.T) {
	var p Ptr[int]
	assert.True(t, p.Empty())
	assert.Nil(t, p.Get())
	assert.Zero(t, p.UseCount())
	assert.Panics(t, func() { _ = p.Value() })
}

func TestPtr_NewRoundTrip(t *testing.T) {
	a := alloc.NewTracking(alloc.NewHeap())

	p, err := New[int](a, 3)
	require.NoError(t, err)
	require.False(t, p.Empty())
	assert.Equal(t, 3, p.Value())
	assert.Equal(t, int64(1), p.UseCount())
	assert.Equal(t, int64(AllocSizeNew[int]()), a.Stats().LiveBytes())

	p.Release()
	assert.True(t, p.Empty())
	assert.Zero(t, a.Stats().LiveBytes())
	assert.Zero(t, a.Stats().LiveBlocks())
}

func TestPtr_CloneRelease(t *testing.T) {
	a := alloc.NewTracking(alloc.NewHeap())

	deleted := 0
	p, err := NewWith[string](a, "x", func(*string) { deleted++ })
	require.NoError(t, err)

	q := p.Clone()
	assert.Equal(t, int64(2), p.UseCount())
	assert.True(t, p.Equal(q))

	q.Release()
	assert.Equal(t, int64(1), p.UseCount())
	assert.Zero(t, deleted)

	p.Release()
	assert.Equal(t, 1, deleted, "deleter must run exactly once")
	assert.Zero(t, a.Stats().LiveBlocks())
}

func TestPtr_CloneEmptyIsNoop(t *testing.T) {
	var p Ptr[int]
	q := p.Clone()
	assert.True(t, q.Empty())
	q.Release()
}

func TestClaim_AdoptsExternalObject(t *testing.T) {
	a := alloc.NewTracking(alloc.NewHeap())

	obj := new(int)
	*obj = 42
	deleted := 0
	p, err := Claim[int](a, obj, func(o *int) {
		assert.Same(t, obj, o)
		deleted++
	})
	require.NoError(t, err)
	assert.Same(t, obj, p.Get())
	assert.Equal(t, int64(AllocSizeClaim[int]()), a.Stats().LiveBytes())

	p.Release()
	assert.Equal(t, 1, deleted)
	assert.Zero(t, a.Stats().LiveBytes())
}

// failingAllocator fails every allocation; used to exercise the
// construction failure paths.
type failingAllocator struct{}

func (failingAllocator) Alloc(uintptr) (unsafe.Pointer, error) {
	return nil, assert.AnError
}
func (failingAllocator) Free(unsafe.Pointer, uintptr) {}
func (a failingAllocator) Clone() alloc.Allocator     { return a }

func TestNew_AllocFailure(t *testing.T) {
	_, err := New[int](failingAllocator{}, 1)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestClaim_AllocFailureRunsDeleter(t *testing.T) {
	obj := new(int)
	deleted := 0
	_, err := Claim[int](failingAllocator{}, obj, func(*int) { deleted++ })
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, deleted, "the deleter consumes the object on failure")
}

// Distinct handles to one control block may be dropped concurrently; the
// deleter must still run exactly once.
func TestPtr_ConcurrentReleases(t *testing.T) {
	a := alloc.NewTracking(alloc.NewHeap())

	const holders = 64

	var deleted atomic.Int32
	p, err := NewWith[int](a, 7, func(*int) { deleted.Add(1) })
	require.NoError(t, err)

	clones := make([]Ptr[int], holders)
	for i := range clones {
		clones[i] = p.Clone()
	}
	p.Release()

	wg := sync.WaitGroup{}
	wg.Add(holders)
	for i := range clones {
		go func(i int) {
			defer wg.Done()
			clones[i].Release()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), deleted.Load())
	assert.Zero(t, a.Stats().LiveBlocks())
}

func TestPtr_RawSnapshot(t *testing.T) {
	p, err := New[int](nil, 9)
	require.NoError(t, err)
	defer p.Release()

	r := p.Raw()
	assert.Equal(t, p.Get(), r.Get())
	assert.Equal(t, p.Version(), r.Version())
	assert.False(t, r.Empty())
}
