// Package summary serves aggregate queries through the cache, falling back
// to the ledger on miss. Cached entries that fail the shape check are
// bypassed and recomputed.
package summary

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/voltpay/volt-payment-gateway/internal/cache"
	"github.com/voltpay/volt-payment-gateway/internal/consistency"
	"github.com/voltpay/volt-payment-gateway/internal/model"
)

// Source is the slice of the ledger the aggregator reads.
type Source interface {
	GetSummary(ctx context.Context, from, to *time.Time) (model.Summary, error)
}

// Aggregator answers (from, to) summary queries.
type Aggregator struct {
	source Source
	cache  *cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// New creates an Aggregator caching results for ttl.
func New(source Source, c *cache.Cache, ttl time.Duration, logger *slog.Logger) *Aggregator {
	return &Aggregator{source: source, cache: c, ttl: ttl, logger: logger}
}

// Summary returns the per-processor totals over a closed interval. Either
// bound may be nil. The result always contains both processor keys with
// non-negative numeric fields.
func (a *Aggregator) Summary(ctx context.Context, from, to *time.Time) (model.Summary, error) {
	key := cache.SummaryKey(from, to)

	if raw, ok := a.cache.Get(ctx, key); ok {
		var s model.Summary
		if err := json.Unmarshal([]byte(raw), &s); err == nil {
			if consistency.Summary(s).Passed() {
				return s, nil
			}
			a.logger.Warn("summary_cache_inconsistent", "key", key)
		} else {
			a.logger.Warn("summary_cache_malformed", "key", key, "error", err.Error())
		}
		// Fall through and recompute, bypassing the bad entry.
	}

	s, err := a.source.GetSummary(ctx, from, to)
	if err != nil {
		return model.ZeroSummary(), err
	}

	if res := consistency.Summary(s); !res.Passed() {
		a.logger.Warn("summary_store_inconsistent", "key", key, "detail", res.FailureDetail())
		return s, nil
	}

	if raw, err := json.Marshal(s); err == nil {
		a.cache.Set(ctx, key, string(raw), a.ttl)
	}
	return s, nil
}
