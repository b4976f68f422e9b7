//go:build !linux && !darwin

package alloc

import "unsafe"

// MmapAllocator is unavailable on this platform; every allocation fails.
type MmapAllocator struct{}

func NewMmap() *MmapAllocator { return &MmapAllocator{} }

func (a *MmapAllocator) Alloc(n uintptr) (unsafe.Pointer, error) { return nil, ErrUnsupported }

func (a *MmapAllocator) Free(p unsafe.Pointer, n uintptr) {}

func (a *MmapAllocator) Clone() Allocator { return a }
