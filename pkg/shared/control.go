package shared

import (
	"sync/atomic"
	"unsafe"

	"github.com/Borislavv/atomic-shared/pkg/alloc"
)

// controlBlock is the per-object record behind every handle: the strong
// count, the pointee, the type-erased deleter and enough bookkeeping to
// release its own storage on last release. All fields except the count are
// written once at construction and read-only until destroy.
type controlBlock[T any] struct {
	strong atomic.Int64
	obj    *T
	del    func(*T)
	size   uintptr
	alloc  alloc.Allocator
}

// cbFromCSW recovers the control-block address from a compressed word.
func cbFromCSW[T any](w uint64) *controlBlock[T] {
	return (*controlBlock[T])(unsafe.Pointer(uintptr(w & ptrMask)))
}

func (c *controlBlock[T]) owned() *T { return c.obj }

func (c *controlBlock[T]) useCount() int64 { return c.strong.Load() }

// inc adds n strong references and returns the new count. Go's atomics are
// sequentially consistent, which subsumes the relaxed ordering the
// increment minimally needs.
func (c *controlBlock[T]) inc(n int64) int64 {
	return c.strong.Add(n)
}

// dec releases n strong references and returns the new count. The thread
// that observes zero runs destroy; the total order of the atomic Add is
// what makes all prior writes through the pointee visible to it.
func (c *controlBlock[T]) dec(n int64) int64 {
	v := c.strong.Add(-n)
	if v == 0 {
		c.destroy()
	} else if v < 0 {
		panic("shared: strong count underflow")
	}
	return v
}

// destroy tears the record down: deleter on the pointee, field teardown,
// pin release, storage back to the cloned allocator. Runs exactly once;
// after it returns the block's memory must not be read again.
func (c *controlBlock[T]) destroy() {
	if c.del != nil {
		c.del(c.obj)
	}
	a, size := c.alloc, c.size
	p := unsafe.Pointer(c)
	c.obj, c.del, c.alloc = nil, nil, nil
	unpin(uintptr(p))
	a.Free(p, size)
}
