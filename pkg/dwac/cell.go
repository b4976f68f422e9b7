package dwac

import "unsafe"

// Cell is a 16-byte atomic cell. The zero value is a cell holding zero.
//
// Go structs are only guaranteed 8-byte alignment, while the double-quadword
// CAS requires 16, so the cell over-allocates by one quadword and resolves
// the aligned window on every access. A Cell must not be copied after first
// use: the aligned window shifts with the address.
type Cell struct {
	noCopy noCopy
	buf    [3]uint64
}

// words resolves the 16-byte-aligned window inside buf. Single-expression
// pointer arithmetic: the heap does not move objects, but vet insists the
// uintptr never outlives the expression it was derived in.
func (c *Cell) words() *[2]uint64 {
	return (*[2]uint64)(unsafe.Pointer((uintptr(unsafe.Pointer(&c.buf[0])) + 15) &^ 15))
}

// Load returns the current cell value. Implemented as a CAS of the cell
// against itself: the primitive publishes the observed value on failure,
// and a successful swap of zero for zero is indistinguishable from a read.
func (c *Cell) Load() OWord {
	lo, hi, _ := cas128(c.words(), 0, 0, 0, 0)
	return OWord{Lo: lo, Hi: hi}
}

// Store atomically replaces the cell value.
func (c *Cell) Store(w OWord) {
	expected := c.Load()
	for !c.CompareAndSwap(&expected, w) {
	}
}

// CompareAndSwap atomically replaces the cell with desired when it equals
// *expected. Strong: it fails only on a genuine mismatch, and on failure
// the observed value is written back through expected.
func (c *Cell) CompareAndSwap(expected *OWord, desired OWord) bool {
	lo, hi, swapped := cas128(c.words(), expected.Lo, expected.Hi, desired.Lo, desired.Hi)
	if !swapped {
		expected.Lo, expected.Hi = lo, hi
	}
	return swapped
}

// Swap atomically replaces the cell value and returns the previous one.
func (c *Cell) Swap(desired OWord) OWord {
	expected := c.Load()
	for !c.CompareAndSwap(&expected, desired) {
	}
	return expected
}

// rmw applies mutate to a snapshot of the cell and CASes the result in,
// retrying until the full-cell transition lands. Returns the value the
// mutation was applied to.
func (c *Cell) rmw(mutate func(w *OWord)) OWord {
	expected := c.Load()
	for {
		desired := expected
		mutate(&desired)
		if c.CompareAndSwap(&expected, desired) {
			return expected
		}
	}
}

// FetchAddByte adds v to the byte at index i, wrapping within the byte,
// and returns the previous full cell.
func (c *Cell) FetchAddByte(v uint8, i uint8) OWord {
	checkIndex(i, 1)
	return c.rmw(func(w *OWord) { w.SetByte(i, w.Byte(i)+v) })
}

// FetchSubByte subtracts v from the byte at index i, wrapping within the
// byte, and returns the previous full cell.
func (c *Cell) FetchSubByte(v uint8, i uint8) OWord {
	checkIndex(i, 1)
	return c.rmw(func(w *OWord) { w.SetByte(i, w.Byte(i)-v) })
}

// SwapByte replaces the byte at index i and returns the previous full cell.
func (c *Cell) SwapByte(v uint8, i uint8) OWord {
	checkIndex(i, 1)
	return c.rmw(func(w *OWord) { w.SetByte(i, v) })
}

// FetchAddUint16 adds v to the 16-bit sub-word at width-scaled index i and
// returns the previous full cell.
func (c *Cell) FetchAddUint16(v uint16, i uint8) OWord {
	checkIndex(i, 2)
	return c.rmw(func(w *OWord) { w.SetUint16(i, w.Uint16(i)+v) })
}

// FetchSubUint16 subtracts v from the 16-bit sub-word at width-scaled
// index i and returns the previous full cell.
func (c *Cell) FetchSubUint16(v uint16, i uint8) OWord {
	checkIndex(i, 2)
	return c.rmw(func(w *OWord) { w.SetUint16(i, w.Uint16(i)-v) })
}

// SwapUint16 replaces the 16-bit sub-word at width-scaled index i and
// returns the previous full cell.
func (c *Cell) SwapUint16(v uint16, i uint8) OWord {
	checkIndex(i, 2)
	return c.rmw(func(w *OWord) { w.SetUint16(i, v) })
}

// FetchAddUint32 adds v to the 32-bit sub-word at width-scaled index i and
// returns the previous full cell.
func (c *Cell) FetchAddUint32(v uint32, i uint8) OWord {
	checkIndex(i, 4)
	return c.rmw(func(w *OWord) { w.SetUint32(i, w.Uint32(i)+v) })
}

// FetchSubUint32 subtracts v from the 32-bit sub-word at width-scaled
// index i and returns the previous full cell.
func (c *Cell) FetchSubUint32(v uint32, i uint8) OWord {
	checkIndex(i, 4)
	return c.rmw(func(w *OWord) { w.SetUint32(i, w.Uint32(i)-v) })
}

// SwapUint32 replaces the 32-bit sub-word at width-scaled index i and
// returns the previous full cell.
func (c *Cell) SwapUint32(v uint32, i uint8) OWord {
	checkIndex(i, 4)
	return c.rmw(func(w *OWord) { w.SetUint32(i, v) })
}

// FetchAddUint64 adds v to the quadword at index i and returns the
// previous full cell.
func (c *Cell) FetchAddUint64(v uint64, i uint8) OWord {
	checkIndex(i, 8)
	return c.rmw(func(w *OWord) { w.SetUint64(i, w.Uint64(i)+v) })
}

// FetchSubUint64 subtracts v from the quadword at index i and returns the
// previous full cell.
func (c *Cell) FetchSubUint64(v uint64, i uint8) OWord {
	checkIndex(i, 8)
	return c.rmw(func(w *OWord) { w.SetUint64(i, w.Uint64(i)-v) })
}

// SwapUint64 replaces the quadword at index i and returns the previous
// full cell.
func (c *Cell) SwapUint64(v uint64, i uint8) OWord {
	checkIndex(i, 8)
	return c.rmw(func(w *OWord) { w.SetUint64(i, v) })
}

// UnsafeLoad reads the cell without atomicity. Callers must guarantee no
// concurrent access to the cell.
func (c *Cell) UnsafeLoad() OWord {
	w := c.words()
	return OWord{Lo: w[0], Hi: w[1]}
}

// UnsafeStore writes the cell without atomicity. Callers must guarantee no
// concurrent access to the cell.
func (c *Cell) UnsafeStore(v OWord) {
	w := c.words()
	w[0], w[1] = v.Lo, v.Hi
}

// noCopy triggers `go vet`'s copylocks check, the same trick the sync
// package uses.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
