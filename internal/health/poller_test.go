package health

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltpay/volt-payment-gateway/internal/cache"
	"github.com/voltpay/volt-payment-gateway/internal/model"
	"github.com/voltpay/volt-payment-gateway/internal/processor"
)

func newTestPoller(t *testing.T, interval time.Duration) (*Poller, *processor.MockProcessor, *processor.MockProcessor) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	c := cache.New("not a redis url", logger)

	def := processor.NewMockProcessor(model.ProcessorDefault)
	fb := processor.NewMockProcessor(model.ProcessorFallback)
	p := NewPollerWithConfig([]processor.Processor{def, fb}, c, interval, time.Second, logger)
	return p, def, fb
}

func TestPoller_PublishesSnapshots(t *testing.T) {
	p, _, fb := newTestPoller(t, time.Hour)
	fb.SetFailing(true)

	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		_, ok := p.Snapshot(context.Background(), model.ProcessorDefault)
		return ok
	}, time.Second, 10*time.Millisecond)

	snap, ok := p.Snapshot(context.Background(), model.ProcessorDefault)
	require.True(t, ok)
	assert.False(t, snap.Failing)
	assert.True(t, snap.IsHealthy)
	assert.False(t, snap.LastCheckedAt.IsZero())

	snap, ok = p.Snapshot(context.Background(), model.ProcessorFallback)
	require.True(t, ok)
	assert.True(t, snap.Failing)
	assert.Equal(t, model.MinResponseTimeSentinel, snap.MinResponseTime)
	assert.NotEmpty(t, snap.Error)
}

func TestPoller_RespectsMinimumInterval(t *testing.T) {
	p, def, _ := newTestPoller(t, time.Hour)

	p.Start()
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	// Only the immediate startup probe fits inside the window. MockProcessor
	// counts Pay calls, not Health probes, so count via snapshots instead:
	// a second probe cannot have run with an hour-long interval.
	snap1, ok := p.Snapshot(context.Background(), def.Name())
	require.True(t, ok)
	time.Sleep(20 * time.Millisecond)
	snap2, _ := p.Snapshot(context.Background(), def.Name())
	assert.Equal(t, snap1.LastCheckedAt, snap2.LastCheckedAt)
}

func TestPoller_SnapshotsMap(t *testing.T) {
	p, _, _ := newTestPoller(t, time.Hour)
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return len(p.Snapshots(context.Background())) == 2
	}, time.Second, 10*time.Millisecond)

	snaps := p.Snapshots(context.Background())
	assert.Contains(t, snaps, "default")
	assert.Contains(t, snaps, "fallback")
}

func TestPoller_ResponseTimes(t *testing.T) {
	p, _, _ := newTestPoller(t, time.Hour)
	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		times := p.ResponseTimes(context.Background())
		return len(times["default"]) > 0 && len(times["fallback"]) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestPoller_ClearCache(t *testing.T) {
	p, _, _ := newTestPoller(t, time.Hour)
	p.Start()

	require.Eventually(t, func() bool {
		_, ok := p.Snapshot(context.Background(), model.ProcessorDefault)
		return ok
	}, time.Second, 10*time.Millisecond)
	p.Stop()

	p.ClearCache(context.Background())
	_, ok := p.Snapshot(context.Background(), model.ProcessorDefault)
	assert.False(t, ok)
}

func TestPoller_StopHaltsWorkers(t *testing.T) {
	p, _, _ := newTestPoller(t, 10*time.Millisecond)
	p.Start()
	time.Sleep(30 * time.Millisecond)
	p.Stop()

	snap1, ok := p.Snapshot(context.Background(), model.ProcessorDefault)
	require.True(t, ok)
	time.Sleep(40 * time.Millisecond)
	snap2, _ := p.Snapshot(context.Background(), model.ProcessorDefault)
	assert.Equal(t, snap1.LastCheckedAt, snap2.LastCheckedAt, "no probes after Stop")
}
