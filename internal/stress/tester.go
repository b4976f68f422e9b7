// Package stress drives the atomic-shared pointer library the way its
// worst consumers would: a slot array of shared handles hammered by
// concurrent assign, reassign, read-sum and CAS workloads, with leak
// accounting over a tracking allocator at the end.
package stress

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zeebo/xxh3"
	"golang.org/x/time/rate"

	"github.com/Borislavv/atomic-shared/internal/stress/config"
	"github.com/Borislavv/atomic-shared/pkg/alloc"
	"github.com/Borislavv/atomic-shared/pkg/prometheus/metrics"
	"github.com/Borislavv/atomic-shared/pkg/shared"
	"github.com/Borislavv/atomic-shared/pkg/utils"
)

// Payload is the pointee the workloads churn. Pointer-free on purpose:
// blocks may live in mmap memory the garbage collector never scans.
type Payload struct {
	Seed  uint64
	Nonce uint64
}

func (p Payload) sum() uint64 {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], p.Seed)
	binary.LittleEndian.PutUint64(b[8:], p.Nonce)
	return xxh3.Hash(b[:])
}

// Tester owns the slot array and runs the configured workloads over it.
type Tester struct {
	cfg   *config.Config
	al    *alloc.TrackingAllocator
	meter metrics.Meter

	slots slotArray

	paused   atomic.Bool
	passes   atomic.Int64
	checksum atomic.Uint64
}

func NewTester(cfg *config.Config, al *alloc.TrackingAllocator, meter metrics.Meter) *Tester {
	t := &Tester{cfg: cfg, al: al, meter: meter}

	n := cfg.Stress.Slots
	if cfg.Stress.Mode == config.ModeMutex {
		t.slots = newMutexSlots(n)
	} else {
		t.slots = newAtomicSlots(n)
	}
	for i := 0; i < n; i++ {
		p := t.make(uint64(i))
		t.slots.seed(i, &p)
	}
	return t
}

func (t *Tester) make(v uint64) shared.Ptr[Payload] {
	return shared.MustNew[Payload](t.al, Payload{Seed: v, Nonce: v ^ 0x9e3779b97f4a7c15})
}

// Pause and Resume gate the workers between passes; driven by the
// /stress/off and /stress/on endpoints.
func (t *Tester) Pause()         { t.paused.Store(true) }
func (t *Tester) Resume()        { t.paused.Store(false) }
func (t *Tester) IsPaused() bool { return t.paused.Load() }

// Checksum is the accumulated xxh3 digest of every payload observed by the
// read-sum workload.
func (t *Tester) Checksum() uint64 { return t.checksum.Load() }

// Run executes all enabled workloads to completion, then verifies the slot
// array and the allocator's leak accounting.
func (t *Tester) Run(ctx context.Context) error {
	w := t.cfg.Stress.Workloads
	threads := t.cfg.Stress.Threads

	log.Info().Msgf(
		"[stress] starting: mode=%s threads=%d slots=%d passes=%d",
		t.cfg.Stress.Mode, threads, t.cfg.Stress.Slots, t.cfg.Stress.Passes,
	)

	reportCtx, stopReport := context.WithCancel(ctx)
	defer stopReport()
	go t.report(reportCtx)

	started := time.Now()

	wg := sync.WaitGroup{}
	for th := 0; th < threads; th++ {
		seed := int64(th) + 1
		if w.Assign {
			t.spawn(ctx, &wg, "assign", seed, t.passAssign)
		}
		if w.Reassign {
			t.spawn(ctx, &wg, "reassign", seed, t.passReassign)
		}
		if w.ReadSum {
			t.spawn(ctx, &wg, "read_sum", seed, t.passReadSum)
		}
		if w.CAS {
			t.spawn(ctx, &wg, "cas", seed, t.passCAS)
		}
	}
	wg.Wait()

	elapsed := time.Since(started)
	log.Info().Msgf(
		"[stress] workloads finished in %s, checksum=%#x",
		elapsed.Round(time.Millisecond), t.Checksum(),
	)

	err := t.verify()
	t.writeSummary(elapsed, err == nil)
	return err
}

type passFn func(rng *rand.Rand)

// spawn runs one workload for the configured number of passes, the way the
// original driver queued one task per workload per thread.
func (t *Tester) spawn(ctx context.Context, wg *sync.WaitGroup, name string, seed int64, pass passFn) {
	wg.Add(1)
	t.meter.WorkerStarted()
	go func() {
		defer wg.Done()
		defer t.meter.WorkerStopped()

		rng := rand.New(rand.NewSource(seed * int64(xxh3.HashString(name)|1)))
		for p := 0; p < t.cfg.Stress.Passes; p++ {
			if !t.gate(ctx) {
				return
			}
			tm := t.meter.NewPassTimer(name)
			pass(rng)
			t.meter.FlushPassTimer(tm)
			t.passes.Add(1)
		}
	}()
}

// gate blocks while the tester is paused; false means the context died.
func (t *Tester) gate(ctx context.Context) bool {
	for t.paused.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
	return ctx.Err() == nil
}

func (t *Tester) passAssign(rng *rand.Rand) {
	for i := 0; i < t.slots.len(); i++ {
		p := t.make(rng.Uint64())
		t.slots.store(i, &p)
		t.meter.IncOp("assign")
	}
}

func (t *Tester) passReassign(rng *rand.Rand) {
	n := t.slots.len()
	for i := 0; i < n; i++ {
		p := t.slots.load((i + rng.Intn(n)) % n)
		t.slots.store(i, &p)
		t.meter.IncOp("reassign")
	}
}

func (t *Tester) passReadSum(rng *rand.Rand) {
	_ = rng
	local := uint64(0)
	n := t.slots.len()
	for i := 0; i < n; i++ {
		p := t.slots.load(i)
		if !p.Empty() {
			local += p.Value().sum()
		}
		p.Release()
		t.meter.IncOp("read_sum")
	}
	t.checksum.Add(local)
	t.meter.AddChecksumUpdates(n)
}

func (t *Tester) passCAS(rng *rand.Rand) {
	n := t.slots.len()
	for i := 0; i < n; i++ {
		des := t.make(rng.Uint64())
		ok := t.slots.compareAndSwap(i, &des)
		if !ok {
			des.Release()
		}
		t.meter.IncCAS("owning", ok)

		des2 := t.make(rng.Uint64())
		ok2 := t.slots.compareAndSwapVersioned(i, &des2)
		if !ok2 {
			des2.Release()
		}
		t.meter.IncCAS("versioned", ok2)
	}
}

// report logs progress on the configured interval.
func (t *Tester) report(ctx context.Context) {
	lim := rate.NewLimiter(rate.Every(t.cfg.Stress.Report.Interval), 1)
	for range utils.NewTicker(ctx, t.cfg.Stress.Report.Interval) {
		if !lim.Allow() {
			continue
		}
		log.Info().Msgf(
			"[stress] passes=%d checksum=%#x liveBlocks=%d liveBytes=%d paused=%v",
			t.passes.Load(), t.Checksum(),
			t.al.Stats().LiveBlocks(), t.al.Stats().LiveBytes(), t.IsPaused(),
		)
	}
}

// verify checks every slot still expands to a consistent handle, tears the
// array down and asserts the allocator drained to zero.
func (t *Tester) verify() error {
	mismatches := 0
	for i := 0; i < t.slots.len(); i++ {
		p := t.slots.load(i)
		if p.Empty() || p.Get() == nil {
			mismatches++
		} else if r := p.Raw(); r.Get() != p.Get() {
			mismatches++
		}
		p.Release()
	}
	t.slots.close()

	if mismatches > 0 {
		return fmt.Errorf("stress: %d slots expanded inconsistently", mismatches)
	}
	if live := t.al.Stats().LiveBlocks(); live != 0 {
		return fmt.Errorf("stress: %d control blocks leaked (%d bytes)",
			live, t.al.Stats().LiveBytes())
	}

	log.Info().Msgf("[stress] verification passed: zero live blocks, checksum=%#x", t.Checksum())
	return nil
}
