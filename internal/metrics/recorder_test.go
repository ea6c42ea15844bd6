package metrics

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestRecorder(capacity int) *Recorder {
	return NewRecorder(capacity, time.Minute, time.Second, slog.New(slog.DiscardHandler))
}

func TestSnapshot_Empty(t *testing.T) {
	r := newTestRecorder(10)
	stats := r.Snapshot()
	assert.Equal(t, 0, stats.SampleCount)
	assert.Zero(t, stats.AvgMs)
	assert.Zero(t, stats.ThroughputPerSec)
}

func TestRecord_RingStaysBounded(t *testing.T) {
	r := newTestRecorder(10)
	for i := 0; i < 100; i++ {
		r.Record(time.Millisecond, true)
	}
	assert.Equal(t, 10, r.Snapshot().SampleCount)
}

func TestSnapshot_DerivedValues(t *testing.T) {
	r := newTestRecorder(1000)
	for i := 1; i <= 100; i++ {
		r.Record(time.Duration(i)*time.Millisecond, i%2 == 0)
	}

	stats := r.Snapshot()
	assert.Equal(t, 100, stats.SampleCount)
	assert.Equal(t, float64(1), stats.MinMs)
	assert.Equal(t, float64(100), stats.MaxMs)
	assert.InDelta(t, 50.5, stats.AvgMs, 0.01)
	assert.Equal(t, float64(50), stats.P50Ms)
	assert.Equal(t, float64(95), stats.P95Ms)
	assert.Equal(t, float64(99), stats.P99Ms)
	assert.InDelta(t, 0.5, stats.SuccessRate, 0.001)
	assert.InDelta(t, 100.0/60.0, stats.ThroughputPerSec, 0.1)
}

func TestSnapshot_PercentilesUseLastHundred(t *testing.T) {
	r := newTestRecorder(1000)
	// Older samples that should fall outside the percentile window.
	for i := 0; i < 200; i++ {
		r.Record(time.Hour, true)
	}
	for i := 0; i < 100; i++ {
		r.Record(10*time.Millisecond, true)
	}

	stats := r.Snapshot()
	assert.Equal(t, float64(10), stats.MaxMs)
	assert.Equal(t, float64(10), stats.P99Ms)
}

func TestSnapshot_SuccessRateOverLastHundred(t *testing.T) {
	r := newTestRecorder(1000)
	for i := 0; i < 100; i++ {
		r.Record(time.Millisecond, false)
	}
	for i := 0; i < 100; i++ {
		r.Record(time.Millisecond, true)
	}
	assert.Equal(t, 1.0, r.Snapshot().SuccessRate)
}
