package gc

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds the two pacing intervals for the forced-GC loop.
type Config struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	GCInterval        time.Duration `yaml:"gc_interval" mapstructure:"gc_interval"`
	FreeOsMemInterval time.Duration `yaml:"free_os_mem_interval" mapstructure:"free_os_mem_interval"`
}

// Run periodically forces Go's garbage collector and tries to return freed pages back to the OS.
// ----------------------------------------------
// Why is this needed?
//
// The stress driver churns through millions of short-lived control blocks
// and pointees. With the heap-backed allocator each block is Go garbage
// the moment its registry pin drops, but Go's GC only runs a full
// collection when the heap grows by GOGC% (default 100%), so between
// cycles the process looks like it leaks the whole churn volume.
//
// To prevent this, we force `runtime.GC()` on a short interval,
// and periodically call `debug.FreeOSMemory()` to push freed pages back to the OS.
// Both intervals are configurable in the config.
//
// This guarantees:
//   - predictable and stable memory usage
//   - less surprise RSS growth during steady state
//   - accurate before/after RSS comparisons across stress passes.
func Run(ctx context.Context, cfg Config) {
	if !cfg.Enabled {
		return
	}
	go func() {
		// Force GC walk-through every cfg.GCInterval
		gcTicker := time.NewTicker(cfg.GCInterval)
		defer gcTicker.Stop()

		// Return free pages to OS every cfg.FreeOsMemInterval
		freeOssMemTicker := time.NewTicker(cfg.FreeOsMemInterval)
		defer freeOssMemTicker.Stop()

		log.Info().Msgf(
			"[force-GC] running with gcInterval=%s, freeOsMemInterval=%s",
			cfg.GCInterval, cfg.FreeOsMemInterval,
		)

		var lastAlloc uint64

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("[force-GC] stopped")
				return

			case <-gcTicker.C:
				var mem runtime.MemStats
				runtime.ReadMemStats(&mem)

				runtime.GC()

				log.Info().Msgf(
					"[force-GC] forced GC pass (last GC pass at: %s, pause: %s)",
					time.Unix(0, int64(mem.LastGC)).Format(time.RFC3339Nano),
					lastGCPauseNs(mem.PauseNs),
				)

				lastAlloc = mem.Alloc
			case <-freeOssMemTicker.C:
				var mem runtime.MemStats
				runtime.ReadMemStats(&mem)

				if lastAlloc == 0 {
					lastAlloc = mem.Alloc
					continue
				}

				debug.FreeOSMemory() // use madvise(DONTNEED) under the hood

				log.Info().Msgf(
					"[force-GC] forcing flush of freed memory to OS (alloc was %s, now %s)",
					fmtBytes(lastAlloc), fmtBytes(mem.Alloc),
				)

				lastAlloc = mem.Alloc
			}
		}
	}()
}

// fmtBytes formats a byte count to a human-readable string.
func fmtBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func lastGCPauseNs(pauses [256]uint64) time.Duration {
	for i := 255; i >= 0; i-- {
		if pauses[i] > 0 {
			return time.Duration(pauses[i])
		}
	}
	return time.Duration(0)
}
