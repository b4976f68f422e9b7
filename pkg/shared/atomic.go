package shared

import (
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Borislavv/atomic-shared/pkg/dwac"
)

// Atomic is the concurrently shared smart-pointer cell. Its only mutable
// state is the compressed storage word in the low quadword of a 16-byte
// dwac cell; the high quadword is reserved. The pointee is derived from
// the control block on every expansion rather than stored alongside it,
// which keeps every replacement a single-quadword transition.
//
// The zero value is an empty handle. An Atomic must not be copied after
// first use.
type Atomic[T any] struct {
	cell dwac.Cell
}

// NewAtomic returns an empty atomic handle.
func NewAtomic[T any]() *Atomic[T] { return &Atomic[T]{} }

// NewAtomicFrom returns an atomic handle initialized from p, consuming it.
// Construction is single-threaded by definition, so the unsafe store is
// used.
func NewAtomicFrom[T any](p *Ptr[T]) *Atomic[T] {
	a := &Atomic[T]{}
	a.UnsafeStore(p)
	return a
}

// Load returns an owning handle for the referent observed at some point
// during the call. The control block's strong count is incremented exactly
// once for the returned handle; an empty atomic handle yields an empty
// owning handle.
func (a *Atomic[T]) Load() Ptr[T] {
	return ptrFromCSW[T](a.copyInternal())
}

// Store replaces the handle's content with p, consuming it. The displaced
// control block, if any, loses one strong reference.
func (a *Atomic[T]) Store(p *Ptr[T]) {
	a.exchangeInternal(p.moveOut(), true)
}

// Swap replaces the handle's content with p, consuming it, and returns the
// previous content as an owning handle whose reference is already
// accounted for.
func (a *Atomic[T]) Swap(p *Ptr[T]) Ptr[T] {
	return ptrFromCSW[T](a.exchangeInternal(p.moveOut(), false))
}

// CompareAndSwap installs desired when the handle currently references the
// same control block as expected. On success desired is consumed, the
// displaced block loses one reference, and expected is left untouched. On
// failure the handle is unchanged, desired is kept by the caller, and
// expected is replaced with an owning capture of the content that caused
// the mismatch. Strong: a false return always reflects a genuine
// control-block mismatch.
func (a *Atomic[T]) CompareAndSwap(expected *Ptr[T], desired *Ptr[T]) bool {
	exp := expected.word
	initialCB := cbFromCSW[T](exp)
	for {
		if a.casInternal(&exp, desired.word, true, true, false) {
			desired.moveOut()
			return true
		}
		// exp now carries a captured reference. Same control block means
		// the mismatch was bookkeeping bits only: release the capture and
		// retry against the refreshed word.
		if cbFromCSW[T](exp) == initialCB {
			if initialCB != nil {
				initialCB.dec(1)
			}
			continue
		}
		old := *expected
		*expected = ptrFromCSW[T](exp)
		old.Release()
		return false
	}
}

// CompareAndSwapVersioned installs desired when the handle's word matches
// expected on address, tag and version. The version qualification defeats
// ABA within 256 writer wins: a recycled address no longer matches once
// any writer has intervened. On failure expected receives a fresh
// non-owning snapshot; no reference counts are touched.
func (a *Atomic[T]) CompareAndSwapVersioned(expected *RawVersioned[T], desired *Ptr[T]) bool {
	exp := expected.word
	key := exp & versionedKeyMask
	for {
		if a.casInternal(&exp, desired.word, true, false, true) {
			desired.moveOut()
			return true
		}
		if exp&versionedKeyMask == key {
			// Only the copy-request byte moved; not a genuine mismatch.
			continue
		}
		*expected = rawFromCSW[T](exp)
		return false
	}
}

// LoadAndTag atomically loads the handle and sets the tag bit in its
// stored word, returning an owning handle for the pre-tag state. The tag
// is monotonic within a version epoch: only a subsequent writer CAS (which
// bumps the version) clears it.
func (a *Atomic[T]) LoadAndTag() Ptr[T] {
	initial := a.addCopyRequest()
	cb := cbFromCSW[T](initial)
	expected := initial
	for {
		reqs := int64(cswCopyRequests(expected))
		if cb != nil {
			cb.inc(reqs)
		}
		desired := cswSetTag(expected &^ copyRequestMask)
		if a.casLow(&expected, desired) {
			break
		}
		if cb != nil {
			cb.dec(reqs)
		}
		if cbFromCSW[T](expected) != cb || cswVersion(expected) != cswVersion(initial) {
			// A writer won; its version bump opens a new tag epoch and it
			// has absorbed our claim.
			break
		}
	}
	return ptrFromCSW[T](initial)
}

// Raw returns a non-owning version-qualified snapshot of the handle.
func (a *Atomic[T]) Raw() RawVersioned[T] {
	return rawFromCSW[T](a.cell.Load().Lo)
}

// UnsafeLoad is Load without atomicity. Usable only while no other
// goroutine accesses this handle.
func (a *Atomic[T]) UnsafeLoad() Ptr[T] {
	w := a.cell.UnsafeLoad().Lo
	if cb := cbFromCSW[T](w); cb != nil {
		cb.inc(1)
	}
	return ptrFromCSW[T](w)
}

// UnsafeStore is Store without atomicity. Usable only while no other
// goroutine accesses this handle.
func (a *Atomic[T]) UnsafeStore(p *Ptr[T]) {
	prev := a.cell.UnsafeLoad().Lo
	a.cell.UnsafeStore(dwac.OWord{Lo: cswWithVersion(p.moveOut(), cswVersion(prev)+1)})
	if cb := cbFromCSW[T](prev); cb != nil {
		cb.dec(1)
	}
}

// UnsafeSwap is Swap without atomicity. Usable only while no other
// goroutine accesses this handle.
func (a *Atomic[T]) UnsafeSwap(p *Ptr[T]) Ptr[T] {
	prev := a.cell.UnsafeLoad().Lo
	a.cell.UnsafeStore(dwac.OWord{Lo: cswWithVersion(p.moveOut(), cswVersion(prev)+1)})
	return ptrFromCSW[T](prev)
}

// Close releases the handle's reference on its current control block. The
// caller guarantees no goroutine accesses the handle anymore.
func (a *Atomic[T]) Close() {
	var empty Ptr[T]
	a.UnsafeStore(&empty)
}

// ---------------------------------------------------------------------
// internals
// ---------------------------------------------------------------------

// casLow CASes the low quadword of the cell. The high quadword is reserved
// and always zero, so a full-cell CAS with zero high halves is exact. On
// failure the observed word is written back through expected.
func (a *Atomic[T]) casLow(expected *uint64, desired uint64) bool {
	e := dwac.OWord{Lo: *expected}
	if a.cell.CompareAndSwap(&e, dwac.OWord{Lo: desired}) {
		return true
	}
	*expected = e.Lo
	return false
}

var saturationWarnLimit = rate.NewLimiter(rate.Every(time.Second), 1)

// addCopyRequest registers a read intent on the cell and returns the word
// including the caller's own request. A caller that lands at or above the
// byte's ceiling drives a drain immediately (its own claim keeps the
// control block pinned meanwhile) so the byte heads back toward zero
// before it can wrap. The headroom between the ceiling and the wrap bounds
// how many claimers can race past the check at once.
func (a *Atomic[T]) addCopyRequest() uint64 {
	prev := a.cell.FetchAddByte(1, copyRequestIndex).Lo
	w := cswWithCopyRequests(prev, cswCopyRequests(prev)+1)
	if cswCopyRequests(w) >= copyRequestCeiling && cbFromCSW[T](w) != nil {
		if saturationWarnLimit.Allow() {
			log.Warn().Msg("[shared] copy-request byte at ceiling, draining early")
		}
		exp := w
		a.tryIncrement(&exp)
	}
	return w
}

// copyInternal claims a share of the current referent: register a copy
// request, then cooperatively convert outstanding requests into strong
// references. By return, the returned word's reference is accounted for:
// either this reader applied the increments itself or a concurrent
// writer/reader absorbed its request.
func (a *Atomic[T]) copyInternal() uint64 {
	initial := a.addCopyRequest()
	if cbFromCSW[T](initial) != nil {
		expected := initial
		a.tryIncrement(&expected)
	}
	return initial &^ copyRequestMask
}

// tryIncrement drives the cooperative drain: apply the observed
// copy-request count to the strong count, then CAS the word down to zero
// requests. Losing the CAS undoes the speculative increments; the loop
// exits when the word moved on (someone else took responsibility) or the
// requests hit zero.
func (a *Atomic[T]) tryIncrement(expected *uint64) {
	cb := cbFromCSW[T](*expected)
	if cb == nil {
		return
	}
	initial := *expected & drainKeyMask
	for {
		reqs := int64(cswCopyRequests(*expected))
		cb.inc(reqs)
		if a.casLow(expected, *expected&^copyRequestMask) {
			return
		}
		cb.dec(reqs)
		if *expected&drainKeyMask != initial || cswCopyRequests(*expected) == 0 {
			return
		}
	}
}

// incrementAndTrySwap is the writer-side drain: absorb the outstanding
// copy requests into the strong count and, in the same replacement,
// install desired with the version bumped and the requests cleared.
func (a *Atomic[T]) incrementAndTrySwap(expected *uint64, desired uint64) bool {
	cb := cbFromCSW[T](*expected)
	initial := *expected & drainKeyMask
	des := desired &^ copyRequestMask
	for {
		reqs := int64(cswCopyRequests(*expected))
		if cb != nil {
			cb.inc(reqs)
		}
		if a.casLow(expected, cswWithVersion(des, cswVersion(*expected)+1)) {
			return true
		}
		if cb != nil {
			cb.dec(reqs)
		}
		if *expected&drainKeyMask != initial {
			return false
		}
	}
}

// casInternal is the one writer protocol. With no outstanding copy
// requests the replacement is a single CAS. Otherwise the writer joins the
// readers, so whoever drains the requests accounts for this writer too,
// and then either drives the drain itself (same
// comparison key) or helps drain and reports the mismatch.
//
// On success the handle owes the displaced block one reference when
// decrementPrevious is set. On failure with captureOnFailure, *expected is
// left holding a word backed by one strong reference owned by the caller.
func (a *Atomic[T]) casInternal(expected *uint64, desired uint64, decrementPrevious, captureOnFailure, versioned bool) bool {
	cb := cbFromCSW[T](*expected)

	if cswCopyRequests(*expected) == 0 {
		des := cswWithVersion(desired&^copyRequestMask, cswVersion(*expected)+1)
		if a.casLow(expected, des) {
			if decrementPrevious && cb != nil {
				cb.dec(1)
			}
			return true
		}
		if captureOnFailure {
			*expected = a.copyInternal()
		}
		return false
	}

	joined := a.addCopyRequest()
	newCB := cbFromCSW[T](joined)
	old := *expected
	*expected = joined

	match := newCB == cb
	if versioned {
		match = joined&versionedKeyMask == old&versionedKeyMask
	}

	success := false
	if match {
		success = a.incrementAndTrySwap(expected, desired)
	} else {
		helped := joined
		a.tryIncrement(&helped)
	}

	if success {
		if newCB != nil {
			dec := int64(1) // the writer's own absorbed request
			if decrementPrevious {
				dec++ // plus the displaced reference
			}
			newCB.dec(dec)
		}
		return true
	}

	// The joined request has been absorbed by now: this thread owns one
	// reference on newCB. Hand it to the caller as the capture when the
	// observed word still refers to it; release it otherwise.
	if newCB != nil {
		if captureOnFailure && cbFromCSW[T](*expected) == newCB {
			return false
		}
		newCB.dec(1)
	}
	if captureOnFailure {
		*expected = a.copyInternal()
	}
	return false
}

// exchangeInternal loops casInternal until the replacement lands and
// returns the displaced word, whose reference transfers to the caller
// unless decrementPrevious consumed it.
func (a *Atomic[T]) exchangeInternal(to uint64, decrementPrevious bool) uint64 {
	expected := a.cell.Load().Lo
	for !a.casInternal(&expected, to, decrementPrevious, false, false) {
	}
	return expected
}
