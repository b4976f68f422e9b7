package shared

import (
	"fmt"
	"unsafe"

	"github.com/Borislavv/atomic-shared/pkg/alloc"
)

// defaultAllocator backs constructions that pass a nil allocator.
var defaultAllocator alloc.Allocator = alloc.NewHeap()

// objAlign returns the pointee alignment used by the combined layout,
// never below 2. The tag bit lives in the control-block address (the block
// start), so this alignment does not affect it.
func objAlign[T any]() uintptr {
	var zero T
	a := unsafe.Alignof(zero)
	if a < 2 {
		a = 2
	}
	return a
}

// AllocSizeNew reports the block size New requests from the allocator.
func AllocSizeNew[T any]() uintptr {
	var zero T
	return unsafe.Sizeof(controlBlock[T]{}) + objAlign[T]() + unsafe.Sizeof(zero)
}

// AllocSizeClaim reports the block size Claim requests from the allocator.
func AllocSizeClaim[T any]() uintptr {
	return unsafe.Sizeof(controlBlock[T]{})
}

// New allocates a combined control-block-plus-object block, places v in
// it and returns an owning handle with a strong count of one. A nil
// allocator selects the default heap allocator.
func New[T any](a alloc.Allocator, v T) (Ptr[T], error) {
	return NewWith[T](a, v, nil)
}

// NewWith is New with a custom deleter invoked on the pointee at last
// release.
func NewWith[T any](a alloc.Allocator, v T, del func(*T)) (Ptr[T], error) {
	if a == nil {
		a = defaultAllocator
	}

	cbSize := unsafe.Sizeof(controlBlock[T]{})
	align := objAlign[T]()
	size := AllocSizeNew[T]()

	block, err := a.Alloc(size)
	if err != nil {
		return Ptr[T]{}, fmt.Errorf("shared: new: %w", err)
	}

	objOffset := (cbSize + align - 1) &^ (align - 1)
	obj := (*T)(unsafe.Add(block, objOffset))
	*obj = v

	return adopt(a, block, size, obj, del), nil
}

// Claim allocates a control block adopting an already-constructed object.
// On allocation failure the deleter is invoked on obj before the error is
// returned, so the caller's resource state is the same either way. A nil
// deleter leaves reclamation of the object to the garbage collector.
func Claim[T any](a alloc.Allocator, obj *T, del func(*T)) (Ptr[T], error) {
	if a == nil {
		a = defaultAllocator
	}

	size := AllocSizeClaim[T]()
	block, err := a.Alloc(size)
	if err != nil {
		if del != nil {
			del(obj)
		}
		return Ptr[T]{}, fmt.Errorf("shared: claim: %w", err)
	}

	return adopt(a, block, size, obj, del), nil
}

// MustNew is New for setup paths where allocation failure is fatal.
func MustNew[T any](a alloc.Allocator, v T) Ptr[T] {
	p, err := New[T](a, v)
	if err != nil {
		panic(err)
	}
	return p
}

// adopt initializes the control block at the head of block and pins the
// GC-visible collaborators for its lifetime.
func adopt[T any](a alloc.Allocator, block unsafe.Pointer, size uintptr, obj *T, del func(*T)) Ptr[T] {
	addr := uintptr(block)
	if uint64(addr)&^ptrMask != 0 {
		panic("shared: allocator returned an address outside the 48-bit range")
	}

	clone := a.Clone()
	cb := (*controlBlock[T])(block)
	cb.obj = obj
	cb.del = del
	cb.size = size
	cb.alloc = clone
	cb.strong.Store(1)

	pin(addr, obj, del, clone)

	return Ptr[T]{word: uint64(addr), obj: obj}
}
