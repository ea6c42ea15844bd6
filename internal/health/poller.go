// Package health runs the background pollers that keep per-processor
// health snapshots fresh in the cache. Readers of a snapshot never wait on
// a live probe; staleness is bounded by the poll interval.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/voltpay/volt-payment-gateway/internal/cache"
	"github.com/voltpay/volt-payment-gateway/internal/config"
	"github.com/voltpay/volt-payment-gateway/internal/model"
	"github.com/voltpay/volt-payment-gateway/internal/processor"
)

// Poller refreshes each processor's snapshot at most once per interval.
type Poller struct {
	procs        []processor.Processor
	cache        *cache.Cache
	interval     time.Duration
	probeTimeout time.Duration
	logger       *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a poller with the default interval and probe timeout.
func NewPoller(procs []processor.Processor, c *cache.Cache, logger *slog.Logger) *Poller {
	return NewPollerWithConfig(procs, c, config.PollInterval, config.HealthTimeout, logger)
}

// NewPollerWithConfig creates a poller with custom timing for testing.
func NewPollerWithConfig(procs []processor.Processor, c *cache.Cache, interval, probeTimeout time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		procs:        procs,
		cache:        c,
		interval:     interval,
		probeTimeout: probeTimeout,
		logger:       logger,
		stop:         make(chan struct{}),
	}
}

// Start launches one background worker per processor. Each worker probes
// immediately and then once per interval until Stop is called.
func (p *Poller) Start() {
	for _, proc := range p.procs {
		p.wg.Add(1)
		go p.run(proc)
	}
}

// Stop halts all workers and waits for them to exit.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *Poller) run(proc processor.Processor) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probe(proc)
	for {
		select {
		case <-ticker.C:
			p.probe(proc)
		case <-p.stop:
			return
		}
	}
}

func (p *Poller) probe(proc processor.Processor) {
	ctx, cancel := context.WithTimeout(context.Background(), p.probeTimeout)
	defer cancel()

	snap := proc.Health(ctx)
	name := string(proc.Name())

	raw, err := json.Marshal(snap)
	if err != nil {
		p.logger.Error("health_snapshot_marshal_failed", "processor", name, "error", err.Error())
		return
	}

	publishCtx, publishCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer publishCancel()
	p.cache.PutHealthSnapshot(publishCtx, name, string(raw), snap.LastCheckedAt)
	p.cache.PushResponseTime(publishCtx, name, snap.ResponseTimeMs)

	if snap.Failing {
		p.logger.Warn("processor_unhealthy",
			"processor", name,
			"min_response_time", snap.MinResponseTime,
			"error", snap.Error,
		)
	} else {
		p.logger.Debug("processor_healthy",
			"processor", name,
			"min_response_time", snap.MinResponseTime,
			"response_time_ms", snap.ResponseTimeMs,
		)
	}
}

// Snapshot reads a processor's last published snapshot from the cache.
func (p *Poller) Snapshot(ctx context.Context, name model.ProcessorType) (model.HealthSnapshot, bool) {
	raw, ok := p.cache.GetHealthSnapshot(ctx, string(name))
	if !ok {
		return model.HealthSnapshot{}, false
	}
	var snap model.HealthSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		p.logger.Warn("health_snapshot_unmarshal_failed", "processor", string(name), "error", err.Error())
		return model.HealthSnapshot{}, false
	}
	return snap, true
}

// Snapshots reads all tracked processors' snapshots.
func (p *Poller) Snapshots(ctx context.Context) map[string]model.HealthSnapshot {
	out := make(map[string]model.HealthSnapshot, len(p.procs))
	for _, proc := range p.procs {
		if snap, ok := p.Snapshot(ctx, proc.Name()); ok {
			out[string(proc.Name())] = snap
		}
	}
	return out
}

// ResponseTimes reads the recent probe latencies per processor, most recent
// first. Entries that fail to parse are skipped.
func (p *Poller) ResponseTimes(ctx context.Context) map[string][]int64 {
	out := make(map[string][]int64, len(p.procs))
	for _, proc := range p.procs {
		name := string(proc.Name())
		raw := p.cache.LRange(ctx, cache.ResponseTimesKey(name), 0, -1)
		times := make([]int64, 0, len(raw))
		for _, s := range raw {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				times = append(times, n)
			}
		}
		out[name] = times
	}
	return out
}

// ClearCache drops the published health entries for all tracked processors.
func (p *Poller) ClearCache(ctx context.Context) {
	names := make([]string, 0, len(p.procs))
	for _, proc := range p.procs {
		names = append(names, string(proc.Name()))
	}
	p.cache.ClearHealth(ctx, names...)
}
