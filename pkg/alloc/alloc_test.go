package alloc

import (
	"runtime"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeap_AllocFree(t *testing.T) {
	a := NewHeap()

	p, err := a.Alloc(128)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Zero(t, uintptr(p)%8, "blocks must be at least 8-aligned")

	// The block is writable through its full extent.
	b := unsafe.Slice((*byte)(p), 128)
	for i := range b {
		b[i] = byte(i)
	}
	assert.Equal(t, byte(127), b[127])

	a.Free(p, 128)
}

func TestHeap_CloneFreesOriginalBlocks(t *testing.T) {
	a := NewHeap()
	p, err := a.Alloc(64)
	require.NoError(t, err)

	clone := a.Clone()
	assert.NotPanics(t, func() { clone.Free(p, 64) })
}

func TestHeap_DoubleFreePanics(t *testing.T) {
	a := NewHeap()
	p, err := a.Alloc(32)
	require.NoError(t, err)
	a.Free(p, 32)
	assert.Panics(t, func() { a.Free(p, 32) })
}

func TestHeap_ZeroSize(t *testing.T) {
	a := NewHeap()
	_, err := a.Alloc(0)
	assert.ErrorIs(t, err, ErrZeroSize)
}

func TestMmap_AllocFree(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("mmap backend unsupported on " + runtime.GOOS)
	}

	a := NewMmap()
	p, err := a.Alloc(100)
	require.NoError(t, err)
	require.NotNil(t, p)

	b := unsafe.Slice((*byte)(p), 100)
	b[0], b[99] = 1, 2
	assert.Equal(t, byte(1), b[0])
	assert.Equal(t, byte(2), b[99])

	a.Free(p, 100)
}

func TestTracking_Counters(t *testing.T) {
	a := NewTracking(NewHeap())

	p1, err := a.Alloc(100)
	require.NoError(t, err)
	p2, err := a.Clone().(*TrackingAllocator).Alloc(50)
	require.NoError(t, err)

	assert.Equal(t, int64(150), a.Stats().LiveBytes())
	assert.Equal(t, int64(2), a.Stats().LiveBlocks())

	a.Free(p1, 100)
	a.Clone().Free(p2, 50)

	assert.Equal(t, int64(0), a.Stats().LiveBytes())
	assert.Equal(t, int64(0), a.Stats().LiveBlocks())
	assert.Equal(t, int64(2), a.Stats().Allocs())
	assert.Equal(t, int64(2), a.Stats().Frees())
}

func TestNew_BackendSelection(t *testing.T) {
	h, err := New(Heap)
	require.NoError(t, err)
	assert.IsType(t, &HeapAllocator{}, h)

	m, err := New(Mmap)
	require.NoError(t, err)
	assert.IsType(t, &MmapAllocator{}, m)

	_, err = New("bogus")
	assert.Error(t, err)
}
