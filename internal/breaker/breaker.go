// Package breaker wraps sony/gobreaker with the per-processor bookkeeping
// the dispatch engine needs: a bounded ring of recent response times, a
// monotonic request counter, and an administrative reset. Breaker state is
// per replica; replicas learn processor failures independently.
package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/voltpay/volt-payment-gateway/internal/fault"
)

// Stats is a point-in-time view of one breaker for the stats endpoints.
// It need not be consistent with in-flight mutations.
type Stats struct {
	Name              string     `json:"name"`
	State             string     `json:"state"`
	FailureCount      uint32     `json:"failureCount"`
	SuccessCount      uint32     `json:"successCount"`
	TotalRequests     int64      `json:"totalRequests"`
	LastFailureAt     *time.Time `json:"lastFailureAt,omitempty"`
	ResponseTimeAvgMs float64    `json:"responseTimeAvgMs"`
	ResponseTimeCount int        `json:"responseTimeCount"`
}

// Breaker protects one processor with a CLOSED/OPEN/HALF_OPEN state machine.
// It tolerates concurrent Execute calls; transitions are atomic.
type Breaker struct {
	name             string
	failureThreshold uint32
	resetTimeout     time.Duration
	logger           *slog.Logger

	totalRequests atomic.Int64

	mu            sync.Mutex
	cb            *gobreaker.CircuitBreaker
	ring          []time.Duration
	next          int
	size          int
	lastFailureAt time.Time
}

// New creates a closed breaker for the named processor.
func New(name string, failureThreshold uint32, resetTimeout time.Duration, ringCapacity int, logger *slog.Logger) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		logger:           logger,
		ring:             make([]time.Duration, ringCapacity),
	}
	b.cb = b.newStateMachine()
	return b
}

func (b *Breaker) newStateMachine() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        b.name,
		MaxRequests: 1,
		Timeout:     b.resetTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.TotalFailures >= b.failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Info("breaker_state_changed",
				"processor", name,
				"from", stateLabel(from),
				"to", stateLabel(to),
			)
		},
	})
}

// Execute runs fn through the breaker. When the breaker is open and the
// reset timeout has not elapsed, fn is not invoked and a BreakerOpen fault
// is returned immediately. Rejections do not consume the response-time ring;
// only calls that actually ran do.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	cb := b.cb
	b.mu.Unlock()

	start := time.Now()
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fault.Wrap(fault.BreakerOpen, b.name+" circuit is open", err)
	}

	b.totalRequests.Add(1)
	b.observe(time.Since(start), err == nil)
	return err
}

// State returns CLOSED, OPEN, or HALF_OPEN.
func (b *Breaker) State() string {
	b.mu.Lock()
	cb := b.cb
	b.mu.Unlock()
	return stateLabel(cb.State())
}

// Stats returns a snapshot for the health endpoints.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := b.cb.Counts()
	s := Stats{
		Name:          b.name,
		State:         stateLabel(b.cb.State()),
		FailureCount:  counts.TotalFailures,
		SuccessCount:  counts.TotalSuccesses,
		TotalRequests: b.totalRequests.Load(),
	}
	if !b.lastFailureAt.IsZero() {
		t := b.lastFailureAt
		s.LastFailureAt = &t
	}
	if b.size > 0 {
		var sum time.Duration
		for i := 0; i < b.size; i++ {
			sum += b.ring[i]
		}
		s.ResponseTimeAvgMs = float64(sum.Milliseconds()) / float64(b.size)
		s.ResponseTimeCount = b.size
	}
	return s
}

// Reset closes the breaker and zeroes failure count, success count, last
// failure time, and the response-time ring. The total request counter is
// monotonic and survives resets.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cb = b.newStateMachine()
	b.next = 0
	b.size = 0
	b.lastFailureAt = time.Time{}
	b.logger.Info("breaker_reset", "processor", b.name)
}

func (b *Breaker) observe(d time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ring[b.next] = d
	b.next = (b.next + 1) % len(b.ring)
	if b.size < len(b.ring) {
		b.size++
	}
	if !ok {
		b.lastFailureAt = time.Now()
	}
}

func stateLabel(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return "OPEN"
	case gobreaker.StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}
