// Package cache memoises decode results in Redis, keyed by a digest of the
// full request. Concurrent identical requests are collapsed with
// singleflight so the search runs once.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/syntaxmt/forest-decoder/internal/decode"
	"github.com/syntaxmt/forest-decoder/pkg/config"
	"github.com/syntaxmt/forest-decoder/pkg/metrics"
	pkgredis "github.com/syntaxmt/forest-decoder/pkg/redis"
)

const keyPrefix = "decode:"

// ResultCache caches decode results. A nil *ResultCache is valid and acts
// as a pass-through, so callers need no nil checks when Redis is not
// configured.
type ResultCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a ResultCache over the given Redis client. metrics may be nil.
func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *ResultCache {
	return &ResultCache{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}
}

// Get returns the cached result for key, if present. Redis errors are
// logged and treated as misses.
func (c *ResultCache) Get(ctx context.Context, key string) (*decode.Result, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, keyPrefix+key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result decode.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

// Set stores a result under key for the configured TTL. Failures are logged
// and otherwise ignored.
func (c *ResultCache) Set(ctx context.Context, key string, result *decode.Result) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for key, or runs computeFn and
// caches its result. The bool reports whether the result came from the
// cache. Identical keys in flight share one computeFn call.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	key string,
	computeFn func() (*decode.Result, error),
) (*decode.Result, bool, error) {
	if c == nil || c.client == nil {
		result, err := computeFn()
		return result, false, err
	}
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, key); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*decode.Result), false, nil
}

// Invalidate removes all cached decode results.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return err
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counts since startup.
func (c *ResultCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ResultCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
