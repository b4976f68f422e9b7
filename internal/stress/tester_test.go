package stress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Borislavv/atomic-shared/internal/stress/config"
	"github.com/Borislavv/atomic-shared/pkg/alloc"
	"github.com/Borislavv/atomic-shared/pkg/prometheus/metrics"
)

func newTestCfg(mode string) *config.Config {
	return &config.Config{Stress: config.Stress{
		Enabled: true,
		Threads: 4,
		Slots:   16,
		Passes:  50,
		Mode:    mode,
		Workloads: config.Workloads{
			Assign:   true,
			Reassign: true,
			ReadSum:  true,
			CAS:      true,
		},
		Report:   config.Report{Interval: 100 * time.Millisecond},
		Liveness: config.Liveness{Interval: time.Second},
	}}
}

func runTester(t *testing.T, mode string) {
	t.Helper()

	cfg := newTestCfg(mode)
	tracking := alloc.NewTracking(alloc.NewHeap())
	meter := metrics.New(tracking.Stats())
	tester := NewTester(cfg, tracking, meter)

	err := tester.Run(context.Background())
	require.NoError(t, err)

	assert.NotZero(t, tester.Checksum(), "read-sum must have observed payloads")
	assert.Zero(t, tracking.Stats().LiveBlocks())
	assert.Zero(t, tracking.Stats().LiveBytes())
}

func TestTester_AtomicMode(t *testing.T) {
	runTester(t, config.ModeAtomic)
}

func TestTester_MutexMode(t *testing.T) {
	runTester(t, config.ModeMutex)
}

func TestTester_PauseResume(t *testing.T) {
	cfg := newTestCfg(config.ModeAtomic)
	tracking := alloc.NewTracking(alloc.NewHeap())
	tester := NewTester(cfg, tracking, metrics.New(tracking.Stats()))

	assert.False(t, tester.IsPaused())
	tester.Pause()
	assert.True(t, tester.IsPaused())
	tester.Resume()
	assert.False(t, tester.IsPaused())

	require.NoError(t, tester.Run(context.Background()))
}
