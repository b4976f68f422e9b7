//go:build linux || darwin

package alloc

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MmapAllocator allocates page-rounded anonymous mappings. The memory is
// invisible to the Go garbage collector, which is what makes it safe to
// hide block addresses inside packed integer words. Blocks must not hold
// references to Go-heap objects unless those are pinned elsewhere.
type MmapAllocator struct {
	page uintptr
}

// NewMmap returns an mmap-backed allocator.
func NewMmap() *MmapAllocator {
	return &MmapAllocator{page: uintptr(os.Getpagesize())}
}

func (a *MmapAllocator) round(n uintptr) uintptr {
	return (n + a.page - 1) &^ (a.page - 1)
}

func (a *MmapAllocator) Alloc(n uintptr) (unsafe.Pointer, error) {
	if n == 0 {
		return nil, ErrZeroSize
	}
	b, err := unix.Mmap(-1, 0, int(a.round(n)),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("alloc: mmap of %d bytes: %w", n, err)
	}
	return unsafe.Pointer(&b[0]), nil
}

func (a *MmapAllocator) Free(p unsafe.Pointer, n uintptr) {
	if p == nil {
		return
	}
	b := unsafe.Slice((*byte)(p), a.round(n))
	if err := unix.Munmap(b); err != nil {
		panic("alloc: munmap failed: " + err.Error())
	}
}

// Clone returns the receiver: the allocator is stateless apart from the
// page size, and any instance can unmap any block.
func (a *MmapAllocator) Clone() Allocator {
	return a
}
