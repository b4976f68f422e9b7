package shared

import (
	"encoding/binary"
	"sync"

	"github.com/zeebo/xxh3"
)

// The control block lives in allocator memory the garbage collector does
// not scan. Go values reachable only from there (the claimed pointee, the
// deleter, the allocator clone) would be collected under it. The pin
// table holds a GC-visible reference to each of them from construction
// until destroy. It is sharded by xxh3 over the key, with a mutex per
// shard. Only the construction and destruction paths touch it: the
// atomic-handle protocol steps never do, but an operation that drops the
// last reference to a block reaches it through that block's destroy.
const pinShards = 256

type pinShard struct {
	mu sync.Mutex
	m  map[uintptr][]any
}

var pinTable [pinShards]pinShard

func pinShardOf(addr uintptr) *pinShard {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(addr))
	return &pinTable[xxh3.Hash(b[:])&(pinShards-1)]
}

func pin(addr uintptr, refs ...any) {
	s := pinShardOf(addr)
	s.mu.Lock()
	if s.m == nil {
		s.m = make(map[uintptr][]any, 64)
	}
	s.m[addr] = refs
	s.mu.Unlock()
}

func unpin(addr uintptr) {
	s := pinShardOf(addr)
	s.mu.Lock()
	delete(s.m, addr)
	s.mu.Unlock()
}
