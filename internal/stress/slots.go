package stress

import (
	"sync"

	"github.com/Borislavv/atomic-shared/pkg/shared"
)

// slotArray abstracts the two storage modes so the workloads stay
// identical: the lock-free atomic handles and the mutex-guarded baseline
// the original driver compared against.
type slotArray interface {
	len() int
	seed(i int, p *shared.Ptr[Payload])
	store(i int, p *shared.Ptr[Payload])
	load(i int) shared.Ptr[Payload]
	compareAndSwap(i int, desired *shared.Ptr[Payload]) bool
	compareAndSwapVersioned(i int, desired *shared.Ptr[Payload]) bool
	close()
}

// ---------------------------------------------------------------------
// lock-free mode
// ---------------------------------------------------------------------

type atomicSlots struct {
	arr []shared.Atomic[Payload]
}

func newAtomicSlots(n int) *atomicSlots {
	return &atomicSlots{arr: make([]shared.Atomic[Payload], n)}
}

func (s *atomicSlots) len() int { return len(s.arr) }

func (s *atomicSlots) seed(i int, p *shared.Ptr[Payload]) {
	s.arr[i].UnsafeStore(p)
}

func (s *atomicSlots) store(i int, p *shared.Ptr[Payload]) {
	s.arr[i].Store(p)
}

func (s *atomicSlots) load(i int) shared.Ptr[Payload] {
	return s.arr[i].Load()
}

func (s *atomicSlots) compareAndSwap(i int, desired *shared.Ptr[Payload]) bool {
	expected := s.arr[i].Load()
	ok := s.arr[i].CompareAndSwap(&expected, desired)
	expected.Release()
	return ok
}

func (s *atomicSlots) compareAndSwapVersioned(i int, desired *shared.Ptr[Payload]) bool {
	snapshot := s.arr[i].Raw()
	return s.arr[i].CompareAndSwapVersioned(&snapshot, desired)
}

func (s *atomicSlots) close() {
	for i := range s.arr {
		s.arr[i].Close()
	}
}

// ---------------------------------------------------------------------
// mutex baseline
// ---------------------------------------------------------------------

type mutexSlot struct {
	mu sync.Mutex
	p  shared.Ptr[Payload]
}

type mutexSlots struct {
	arr []mutexSlot
}

func newMutexSlots(n int) *mutexSlots {
	return &mutexSlots{arr: make([]mutexSlot, n)}
}

func (s *mutexSlots) len() int { return len(s.arr) }

func (s *mutexSlots) seed(i int, p *shared.Ptr[Payload]) {
	s.arr[i].p = *p
	*p = shared.Ptr[Payload]{}
}

func (s *mutexSlots) store(i int, p *shared.Ptr[Payload]) {
	sl := &s.arr[i]
	sl.mu.Lock()
	old := sl.p
	sl.p = *p
	*p = shared.Ptr[Payload]{}
	sl.mu.Unlock()
	old.Release()
}

func (s *mutexSlots) load(i int) shared.Ptr[Payload] {
	sl := &s.arr[i]
	sl.mu.Lock()
	p := sl.p.Clone()
	sl.mu.Unlock()
	return p
}

func (s *mutexSlots) compareAndSwap(i int, desired *shared.Ptr[Payload]) bool {
	sl := &s.arr[i]
	sl.mu.Lock()
	// The lock-free owning CAS compares against a fresh load of the slot.
	// Under the lock that snapshot is always current, so the comparison
	// would always hold: the mutex baseline swaps unconditionally.
	old := sl.p
	sl.p = *desired
	*desired = shared.Ptr[Payload]{}
	sl.mu.Unlock()
	old.Release()
	return true
}

func (s *mutexSlots) compareAndSwapVersioned(i int, desired *shared.Ptr[Payload]) bool {
	return s.compareAndSwap(i, desired)
}

func (s *mutexSlots) close() {
	for i := range s.arr {
		s.arr[i].mu.Lock()
		s.arr[i].p.Release()
		s.arr[i].mu.Unlock()
	}
}
