package metrics

import (
	"bytes"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/Borislavv/atomic-shared/pkg/alloc"
	"github.com/Borislavv/atomic-shared/pkg/prometheus/metrics/keyword"
)

// Meter is the stress-driver metrics surface.
type Meter interface {
	IncOp(workload string)
	IncCAS(kind string, ok bool)
	AddChecksumUpdates(n int)
	WorkerStarted()
	WorkerStopped()
	NewPassTimer(workload string) *Timer
	FlushPassTimer(t *Timer)
}

type Metrics struct{}

// New registers the tracking-allocator gauges and returns the meter.
// Gauges are callback-based, so the allocator stats stay the single
// source of truth.
func New(stats *alloc.TrackingStats) *Metrics {
	metrics.GetOrCreateGauge(keyword.AllocLiveBlocks, func() float64 {
		return float64(stats.LiveBlocks())
	})
	metrics.GetOrCreateGauge(keyword.AllocLiveBytes, func() float64 {
		return float64(stats.LiveBytes())
	})
	return &Metrics{}
}

func (m *Metrics) IncOp(workload string) {
	buf := getBuf()
	defer putBuf(buf)

	*buf = append(*buf, keyword.OpsTotal...)
	*buf = append(*buf, `{op="`...)
	*buf = append(*buf, workload...)
	*buf = append(*buf, `"}`...)

	metrics.GetOrCreateCounter(string(*buf)).Inc()
}

func (m *Metrics) IncCAS(kind string, ok bool) {
	result := "miss"
	if ok {
		result = "hit"
	}

	buf := getBuf()
	defer putBuf(buf)

	*buf = append(*buf, keyword.CASTotal...)
	*buf = append(*buf, `{kind="`...)
	*buf = append(*buf, kind...)
	*buf = append(*buf, `",result="`...)
	*buf = append(*buf, result...)
	*buf = append(*buf, `"}`...)

	metrics.GetOrCreateCounter(string(*buf)).Inc()
}

func (m *Metrics) AddChecksumUpdates(n int) {
	metrics.GetOrCreateCounter(keyword.ChecksumUpdates).Add(n)
}

func (m *Metrics) WorkerStarted() {
	metrics.GetOrCreateCounter(keyword.WorkersRunning).Inc()
}

func (m *Metrics) WorkerStopped() {
	metrics.GetOrCreateCounter(keyword.WorkersRunning).Dec()
}

// Timer is a pooled per-pass duration tracker.
type Timer struct {
	start time.Time
	buf   *bytes.Buffer
}

var timerPool = sync.Pool{
	New: func() any {
		return &Timer{
			buf: bytes.NewBuffer(make([]byte, 0, 128)),
		}
	},
}

func (m *Metrics) NewPassTimer(workload string) *Timer {
	t := timerPool.Get().(*Timer)
	t.start = time.Now()
	t.buf.Reset()

	t.buf.WriteString(keyword.PassDurationMs)
	t.buf.WriteString(`{workload="`)
	t.buf.WriteString(workload)
	t.buf.WriteString(`"}`)

	return t
}

func (m *Metrics) FlushPassTimer(t *Timer) {
	durationMs := float64(time.Since(t.start).Milliseconds())
	metrics.GetOrCreateHistogram(t.buf.String()).Update(durationMs)
	timerPool.Put(t)
}

// ===== buf []byte pooling =====

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 256)
		return &b
	},
}

func getBuf() *[]byte {
	return bufPool.Get().(*[]byte)
}

func putBuf(b *[]byte) {
	*b = (*b)[:0]
	bufPool.Put(b)
}
