package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltpay/volt-payment-gateway/internal/fault"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestBreaker(resetTimeout time.Duration) *Breaker {
	return New("default", 3, resetTimeout, 100, testLogger())
}

var errBoom = errors.New("boom")

func TestExecute_SuccessStaysClosed(t *testing.T) {
	b := newTestBreaker(30 * time.Second)

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Execute(func() error { return nil }))
	}

	assert.Equal(t, "CLOSED", b.State())
	stats := b.Stats()
	assert.Equal(t, int64(10), stats.TotalRequests)
	assert.Equal(t, uint32(10), stats.SuccessCount)
	assert.Equal(t, uint32(0), stats.FailureCount)
	assert.Nil(t, stats.LastFailureAt)
}

func TestExecute_OpensAfterThresholdFailures(t *testing.T) {
	b := newTestBreaker(30 * time.Second)

	for i := 0; i < 3; i++ {
		err := b.Execute(func() error { return errBoom })
		require.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, "OPEN", b.State())

	// Subsequent calls are rejected without invoking the function.
	called := false
	err := b.Execute(func() error { called = true; return nil })
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.BreakerOpen))
	assert.False(t, called)
}

func TestExecute_RejectionDoesNotConsumeCounters(t *testing.T) {
	b := newTestBreaker(30 * time.Second)

	for i := 0; i < 3; i++ {
		b.Execute(func() error { return errBoom })
	}
	before := b.Stats()

	b.Execute(func() error { return nil })
	after := b.Stats()

	assert.Equal(t, before.TotalRequests, after.TotalRequests)
	assert.Equal(t, before.ResponseTimeCount, after.ResponseTimeCount)
}

func TestExecute_HalfOpenClosesOnSuccess(t *testing.T) {
	b := newTestBreaker(50 * time.Millisecond)

	for i := 0; i < 3; i++ {
		b.Execute(func() error { return errBoom })
	}
	require.Equal(t, "OPEN", b.State())

	time.Sleep(80 * time.Millisecond)

	// First call after the reset timeout is the half-open probe.
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, "CLOSED", b.State())
	assert.Equal(t, uint32(0), b.Stats().FailureCount, "failure count resets when state becomes CLOSED")
}

func TestExecute_HalfOpenReopensOnFailure(t *testing.T) {
	b := newTestBreaker(50 * time.Millisecond)

	for i := 0; i < 3; i++ {
		b.Execute(func() error { return errBoom })
	}
	time.Sleep(80 * time.Millisecond)

	err := b.Execute(func() error { return errBoom })
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, "OPEN", b.State())
}

func TestReset(t *testing.T) {
	b := newTestBreaker(30 * time.Second)

	for i := 0; i < 3; i++ {
		b.Execute(func() error { return errBoom })
	}
	require.Equal(t, "OPEN", b.State())
	total := b.Stats().TotalRequests

	b.Reset()

	assert.Equal(t, "CLOSED", b.State())
	stats := b.Stats()
	assert.Equal(t, uint32(0), stats.FailureCount)
	assert.Equal(t, uint32(0), stats.SuccessCount)
	assert.Nil(t, stats.LastFailureAt)
	assert.Equal(t, 0, stats.ResponseTimeCount)
	assert.Equal(t, total, stats.TotalRequests, "total requests is monotonic")

	require.NoError(t, b.Execute(func() error { return nil }))
}

func TestExecute_RingNeverExceedsCapacity(t *testing.T) {
	b := New("default", 1000, 30*time.Second, 5, testLogger())

	for i := 0; i < 50; i++ {
		b.Execute(func() error { return nil })
	}
	assert.Equal(t, 5, b.Stats().ResponseTimeCount)
}

func TestExecute_ConcurrentCalls(t *testing.T) {
	b := New("default", 1000, 30*time.Second, 100, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Execute(func() error { return nil })
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), b.Stats().TotalRequests)
	assert.Equal(t, "CLOSED", b.State())
}
