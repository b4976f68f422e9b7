package alloc

import (
	"sync/atomic"
	"unsafe"
)

// TrackingStats aggregates allocator traffic. Shared by an allocator and
// all of its clones.
type TrackingStats struct {
	liveBytes  atomic.Int64
	liveBlocks atomic.Int64
	allocs     atomic.Int64
	frees      atomic.Int64
}

func (s *TrackingStats) LiveBytes() int64  { return s.liveBytes.Load() }
func (s *TrackingStats) LiveBlocks() int64 { return s.liveBlocks.Load() }
func (s *TrackingStats) Allocs() int64     { return s.allocs.Load() }
func (s *TrackingStats) Frees() int64      { return s.frees.Load() }

// TrackingAllocator wraps another allocator and counts live blocks and
// bytes. The stress driver and the leak tests assert that both counters
// return to zero after teardown.
type TrackingAllocator struct {
	inner Allocator
	stats *TrackingStats
}

func NewTracking(inner Allocator) *TrackingAllocator {
	return &TrackingAllocator{inner: inner, stats: &TrackingStats{}}
}

func (a *TrackingAllocator) Stats() *TrackingStats { return a.stats }

func (a *TrackingAllocator) Alloc(n uintptr) (unsafe.Pointer, error) {
	p, err := a.inner.Alloc(n)
	if err != nil {
		return nil, err
	}
	a.stats.allocs.Add(1)
	a.stats.liveBlocks.Add(1)
	a.stats.liveBytes.Add(int64(n))
	return p, nil
}

func (a *TrackingAllocator) Free(p unsafe.Pointer, n uintptr) {
	a.inner.Free(p, n)
	a.stats.frees.Add(1)
	a.stats.liveBlocks.Add(-1)
	a.stats.liveBytes.Add(-int64(n))
}

// Clone shares the stats with the parent so totals stay global across the
// control-block copies.
func (a *TrackingAllocator) Clone() Allocator {
	return &TrackingAllocator{inner: a.inner.Clone(), stats: a.stats}
}
