// Package metrics keeps an in-memory window of recent request outcomes and
// derives latency percentiles, throughput, and success rate from it. State
// is per replica; nothing is shared across processes.
package metrics

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

const percentileWindow = 100

type sample struct {
	ts  time.Time
	dur time.Duration
	ok  bool
}

// Stats is a point-in-time view derived from the recorded window.
type Stats struct {
	SampleCount      int     `json:"sampleCount"`
	AvgMs            float64 `json:"avgMs"`
	MinMs            float64 `json:"minMs"`
	MaxMs            float64 `json:"maxMs"`
	P50Ms            float64 `json:"p50Ms"`
	P95Ms            float64 `json:"p95Ms"`
	P99Ms            float64 `json:"p99Ms"`
	ThroughputPerSec float64 `json:"throughputPerSec"`
	SuccessRate      float64 `json:"successRate"`
}

// Recorder is a bounded ring of request outcomes.
type Recorder struct {
	mu           sync.Mutex
	ring         []sample
	next         int
	size         int
	window       time.Duration
	p99Threshold time.Duration
	lastWarn     time.Time
	logger       *slog.Logger
}

// NewRecorder creates a recorder retaining the last capacity outcomes.
// throughputWindow is the sliding window for throughput; p99Threshold
// triggers a warning log when exceeded.
func NewRecorder(capacity int, throughputWindow, p99Threshold time.Duration, logger *slog.Logger) *Recorder {
	return &Recorder{
		ring:         make([]sample, capacity),
		window:       throughputWindow,
		p99Threshold: p99Threshold,
		logger:       logger,
	}
}

// Record appends one request outcome to the ring, overwriting the oldest
// entry once the ring is full.
func (r *Recorder) Record(dur time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ring[r.next] = sample{ts: time.Now(), dur: dur, ok: ok}
	r.next = (r.next + 1) % len(r.ring)
	if r.size < len(r.ring) {
		r.size++
	}
}

// Snapshot recomputes derived values from the recorded window. Percentiles,
// min/max/avg, and success rate consider the last 100 outcomes; throughput
// counts samples inside the sliding window.
func (r *Recorder) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{SampleCount: r.size}
	if r.size == 0 {
		return stats
	}

	tail := r.lastLocked(percentileWindow)

	var sum time.Duration
	minDur := tail[0].dur
	maxDur := tail[0].dur
	okCount := 0
	for _, s := range tail {
		sum += s.dur
		if s.dur < minDur {
			minDur = s.dur
		}
		if s.dur > maxDur {
			maxDur = s.dur
		}
		if s.ok {
			okCount++
		}
	}

	sorted := make([]time.Duration, len(tail))
	for i, s := range tail {
		sorted[i] = s.dur
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	stats.AvgMs = float64(sum.Milliseconds()) / float64(len(tail))
	stats.MinMs = float64(minDur.Milliseconds())
	stats.MaxMs = float64(maxDur.Milliseconds())
	stats.P50Ms = float64(percentile(sorted, 0.50).Milliseconds())
	stats.P95Ms = float64(percentile(sorted, 0.95).Milliseconds())
	stats.P99Ms = float64(percentile(sorted, 0.99).Milliseconds())
	stats.SuccessRate = float64(okCount) / float64(len(tail))

	cutoff := time.Now().Add(-r.window)
	recent := 0
	for i := 0; i < r.size; i++ {
		if r.ring[i].ts.After(cutoff) {
			recent++
		}
	}
	stats.ThroughputPerSec = float64(recent) / r.window.Seconds()

	r.maybeWarnLocked(stats)
	return stats
}

// lastLocked returns up to n most recent samples, oldest first.
func (r *Recorder) lastLocked(n int) []sample {
	if n > r.size {
		n = r.size
	}
	out := make([]sample, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.ring)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.ring[(start+i)%len(r.ring)])
	}
	return out
}

// maybeWarnLocked logs when p99 crosses the threshold, at most once a minute.
func (r *Recorder) maybeWarnLocked(stats Stats) {
	if r.p99Threshold <= 0 || r.logger == nil {
		return
	}
	if stats.P99Ms <= float64(r.p99Threshold.Milliseconds()) {
		return
	}
	if time.Since(r.lastWarn) < time.Minute {
		return
	}
	r.lastWarn = time.Now()
	r.logger.Warn("p99_latency_above_threshold",
		"p99_ms", stats.P99Ms,
		"threshold_ms", r.p99Threshold.Milliseconds(),
	)
}

func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted))*q) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
