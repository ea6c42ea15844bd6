// Package cache provides the short-TTL key/value adapter backed by redis,
// with a transparent per-replica in-memory fallback when redis is
// unreachable. Fallback data is lossy across replicas.
package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout. Health entries live for an hour so stale-but-usable snapshots
// survive cache restarts; summaries live for the configured TTL.
const (
	HealthCacheKey     = "health:cache"
	HealthLastCheckKey = "health:last_check"

	healthTTL = time.Hour

	summaryPrefix     = "payment:summary:"
	summaryPattern    = summaryPrefix + "*"
	correlationPrefix = "payment:correlation:"

	// CorrelationTTL bounds correlation lookup entries.
	CorrelationTTL = 10 * time.Minute

	// ResponseTimesCap is how many probe latencies are kept per processor.
	ResponseTimesCap = 50
)

// SummaryKey builds the cache key for a normalized summary window.
// Unbounded sides normalize to "null".
func SummaryKey(from, to *time.Time) string {
	norm := func(t *time.Time) string {
		if t == nil {
			return "null"
		}
		return t.UTC().Format(time.RFC3339Nano)
	}
	return summaryPrefix + norm(from) + ":" + norm(to)
}

// CorrelationKey builds the cache key for a correlation-id lookup.
func CorrelationKey(id string) string {
	return correlationPrefix + id
}

// ResponseTimesKey builds the capped-list key for a processor's probe latencies.
func ResponseTimesKey(processor string) string {
	return "health:response_times:" + processor
}

// Cache wraps a redis client and a memory fallback. Every operation tries
// redis first and degrades to memory on error, so callers never see cache
// failures.
type Cache struct {
	rdb      *redis.Client
	mem      *memoryStore
	logger   *slog.Logger
	lastWarn atomic.Int64
}

// New connects to redis at redisURL. A bad URL or unreachable server is not
// fatal; the cache runs on memory until redis answers again.
func New(redisURL string, logger *slog.Logger) *Cache {
	c := &Cache{mem: newMemoryStore(), logger: logger}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("cache_degraded", "reason", "invalid redis url", "error", err.Error())
		return c
	}
	c.rdb = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("cache_degraded", "reason", "redis unreachable", "error", err.Error())
	}
	return c
}

// Close releases the redis connection pool.
func (c *Cache) Close() {
	if c.rdb != nil {
		c.rdb.Close()
	}
}

// degrade logs a cache fallback at most once per minute.
func (c *Cache) degrade(op string, err error) {
	now := time.Now().Unix()
	last := c.lastWarn.Load()
	if now-last < 60 || !c.lastWarn.CompareAndSwap(last, now) {
		return
	}
	c.logger.Warn("cache_degraded", "op", op, "error", err.Error())
}

// Get returns the value for key, or false if absent. A redis miss still
// consults the memory fallback, so entries written while redis was down
// stay reachable after it recovers.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if c.rdb != nil {
		v, err := c.rdb.Get(ctx, key).Result()
		if err == nil {
			return v, true
		}
		if err != redis.Nil {
			c.degrade("get", err)
		}
	}
	return c.mem.get(key)
}

// Set stores key with a TTL.
func (c *Cache) Set(ctx context.Context, key, val string, ttl time.Duration) {
	if c.rdb != nil {
		err := c.rdb.Set(ctx, key, val, ttl).Err()
		if err == nil {
			return
		}
		c.degrade("set", err)
	}
	c.mem.set(key, val, ttl)
}

// Del removes the given keys.
func (c *Cache) Del(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if c.rdb != nil {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			c.degrade("del", err)
		}
	}
	c.mem.del(keys...)
}

// Keys returns keys matching pattern. Used only for the summary purge.
func (c *Cache) Keys(ctx context.Context, pattern string) []string {
	if c.rdb != nil {
		ks, err := c.rdb.Keys(ctx, pattern).Result()
		if err == nil {
			return append(ks, c.mem.keys(pattern)...)
		}
		c.degrade("keys", err)
	}
	return c.mem.keys(pattern)
}

// HGet reads one hash field, consulting the memory fallback on a redis miss.
func (c *Cache) HGet(ctx context.Context, key, field string) (string, bool) {
	if c.rdb != nil {
		v, err := c.rdb.HGet(ctx, key, field).Result()
		if err == nil {
			return v, true
		}
		if err != redis.Nil {
			c.degrade("hget", err)
		}
	}
	return c.mem.hget(key, field)
}

// HSet writes one hash field and refreshes the hash TTL.
func (c *Cache) HSet(ctx context.Context, key, field, val string, ttl time.Duration) {
	if c.rdb != nil {
		err := c.rdb.HSet(ctx, key, field, val).Err()
		if err == nil {
			if ttl > 0 {
				c.rdb.Expire(ctx, key, ttl)
			}
			return
		}
		c.degrade("hset", err)
	}
	c.mem.hset(key, field, val)
	if ttl > 0 {
		c.mem.expire(key, ttl)
	}
}

// LPush prepends values to a list and trims it to cap, refreshing the TTL.
func (c *Cache) LPush(ctx context.Context, key string, capacity int64, ttl time.Duration, vals ...string) {
	if c.rdb != nil {
		err := c.rdb.LPush(ctx, key, toAny(vals)...).Err()
		if err == nil {
			c.rdb.LTrim(ctx, key, 0, capacity-1)
			if ttl > 0 {
				c.rdb.Expire(ctx, key, ttl)
			}
			return
		}
		c.degrade("lpush", err)
	}
	c.mem.lpush(key, vals...)
	c.mem.ltrim(key, 0, capacity-1)
	if ttl > 0 {
		c.mem.expire(key, ttl)
	}
}

// LRange reads a list slice.
func (c *Cache) LRange(ctx context.Context, key string, start, stop int64) []string {
	if c.rdb != nil {
		vs, err := c.rdb.LRange(ctx, key, start, stop).Result()
		if err == nil {
			return vs
		}
		c.degrade("lrange", err)
	}
	return c.mem.lrange(key, start, stop)
}

// PutHealthSnapshot publishes a processor's snapshot and last-check time.
func (c *Cache) PutHealthSnapshot(ctx context.Context, processor, snapshotJSON string, checkedAt time.Time) {
	c.HSet(ctx, HealthCacheKey, processor, snapshotJSON, healthTTL)
	c.HSet(ctx, HealthLastCheckKey, processor, epochMillis(checkedAt), healthTTL)
}

// GetHealthSnapshot reads a processor's last published snapshot.
func (c *Cache) GetHealthSnapshot(ctx context.Context, processor string) (string, bool) {
	return c.HGet(ctx, HealthCacheKey, processor)
}

// PushResponseTime records one probe latency for a processor.
func (c *Cache) PushResponseTime(ctx context.Context, processor string, ms int64) {
	c.LPush(ctx, ResponseTimesKey(processor), ResponseTimesCap, healthTTL, strconv.FormatInt(ms, 10))
}

// InvalidateSummaries purges every cached summary window. Called after each
// successful ledger write.
func (c *Cache) InvalidateSummaries(ctx context.Context) {
	keys := c.Keys(ctx, summaryPattern)
	c.Del(ctx, keys...)
}

// SeenPayment reports whether a correlation lookup entry exists. The probe
// is bounded so the dispatch pre-flight never waits on a slow cache.
func (c *Cache) SeenPayment(ctx context.Context, correlationID string) bool {
	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, ok := c.Get(ctx, CorrelationKey(correlationID))
	return ok
}

// InvalidatePayment drops the correlation lookup entry for one payment.
func (c *Cache) InvalidatePayment(ctx context.Context, correlationID string) {
	c.Del(ctx, CorrelationKey(correlationID))
}

// ClearHealth drops the cached health entries for the given processors.
func (c *Cache) ClearHealth(ctx context.Context, processors ...string) {
	keys := []string{HealthCacheKey, HealthLastCheckKey}
	for _, p := range processors {
		keys = append(keys, ResponseTimesKey(p))
	}
	c.Del(ctx, keys...)
}

func toAny(vals []string) []interface{} {
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

func epochMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
