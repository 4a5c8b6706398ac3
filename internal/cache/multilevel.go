package cache

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// MultiLevelCache puts a short-lived in-process layer in front of Redis.
// Redis calls go through a circuit breaker; while it is open the cache keeps
// serving from memory and reports misses for everything else.
//
// Deletes that never reached Redis are remembered and replayed before the
// next Redis call, so a key invalidated during an outage is not served again
// once Redis is back.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      *RedisCache
	l1TTL   time.Duration
	breaker *CircuitBreaker
	metrics *CacheMetrics

	mu       sync.Mutex
	seq      uint64
	stale    map[string]uint64
	patterns map[string]uint64
}

type MultiLevelConfig struct {
	L1MaxEntries int
	L1TTL        time.Duration
	Breaker      *CircuitBreakerConfig
}

func DefaultMultiLevelConfig() *MultiLevelConfig {
	return &MultiLevelConfig{
		L1MaxEntries: 1000,
		L1TTL:        30 * time.Second,
		Breaker:      DefaultCircuitBreakerConfig(),
	}
}

// NewMultiLevelCache accepts a nil redisCache, in which case only the memory
// level is used.
func NewMultiLevelCache(redisCache *RedisCache, config *MultiLevelConfig) *MultiLevelCache {
	if config == nil {
		config = DefaultMultiLevelConfig()
	}
	return &MultiLevelCache{
		l1:      NewMemoryCache(config.L1MaxEntries),
		l2:      redisCache,
		l1TTL:   config.L1TTL,
		breaker:  NewCircuitBreaker(config.Breaker),
		metrics:  NewCacheMetrics(),
		stale:    make(map[string]uint64),
		patterns: make(map[string]uint64),
	}
}

func (c *MultiLevelCache) l1Expiry(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < c.l1TTL {
		return ttl
	}
	return c.l1TTL
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, c.l1Expiry(ttl)); err != nil {
		c.metrics.RecordError()
		return err
	}
	c.metrics.RecordSet()

	if c.l2 == nil {
		return nil
	}
	_, err := c.remote(ctx, func() error { return c.l2.Set(ctx, key, value, ttl) })
	return err
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := c.l1.Get(ctx, key, dest); err == nil {
		c.metrics.RecordHit()
		return nil
	}

	if c.l2 == nil {
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	missed := false
	err := c.breaker.Execute(func() error {
		if err := c.flushStale(ctx); err != nil {
			return err
		}
		err := c.l2.Get(ctx, key, dest)
		if errors.Is(err, ErrCacheMiss) {
			missed = true
			return nil
		}
		return err
	})
	switch {
	case errors.Is(err, ErrCircuitBreakerOpen):
		c.metrics.RecordDegraded()
		c.metrics.RecordMiss()
		return ErrCacheMiss
	case err != nil:
		c.metrics.RecordError()
		c.metrics.RecordMiss()
		log.Printf("cache: redis get %s failed: %v", key, err)
		return ErrCacheMiss
	case missed:
		c.metrics.RecordMiss()
		return ErrCacheMiss
	}

	c.metrics.RecordHit()
	if err := c.l1.Set(ctx, key, dest, c.l1TTL); err != nil {
		log.Printf("cache: failed to promote %s to memory: %v", key, err)
	}
	return nil
}

func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	_ = c.l1.Delete(ctx, keys...)
	c.metrics.RecordDelete()

	if c.l2 == nil || len(keys) == 0 {
		return nil
	}
	ok, err := c.remote(ctx, func() error { return c.l2.Delete(ctx, keys...) })
	if !ok {
		c.markStale(keys, "")
	}
	return err
}

func (c *MultiLevelCache) DeletePattern(ctx context.Context, pattern string) error {
	if err := c.l1.DeletePattern(ctx, pattern); err != nil {
		return err
	}
	c.metrics.RecordDelete()

	if c.l2 == nil {
		return nil
	}
	ok, err := c.remote(ctx, func() error { return c.l2.DeletePattern(ctx, pattern) })
	if !ok {
		c.markStale(nil, pattern)
	}
	return err
}

// remote replays pending deletes and then runs fn against the second level.
// ok is false when fn did not run to completion. An open breaker is not an
// error for the caller: the call is skipped and counted as degraded.
func (c *MultiLevelCache) remote(ctx context.Context, fn func() error) (ok bool, err error) {
	err = c.breaker.Execute(func() error {
		if err := c.flushStale(ctx); err != nil {
			return err
		}
		return fn()
	})
	switch {
	case errors.Is(err, ErrCircuitBreakerOpen):
		c.metrics.RecordDegraded()
		return false, nil
	case err != nil:
		c.metrics.RecordError()
		log.Printf("cache: redis call failed: %v", err)
		return false, err
	}
	return true, nil
}

func (c *MultiLevelCache) markStale(keys []string, pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	for _, key := range keys {
		c.stale[key] = c.seq
	}
	if pattern != "" {
		c.patterns[pattern] = c.seq
	}
}

// flushStale deletes from Redis everything invalidated while it was
// unreachable. An entry marked again while the flush runs stays pending.
func (c *MultiLevelCache) flushStale(ctx context.Context) error {
	c.mu.Lock()
	if len(c.stale) == 0 && len(c.patterns) == 0 {
		c.mu.Unlock()
		return nil
	}
	keys := make(map[string]uint64, len(c.stale))
	for k, v := range c.stale {
		keys[k] = v
	}
	patterns := make(map[string]uint64, len(c.patterns))
	for p, v := range c.patterns {
		patterns[p] = v
	}
	c.mu.Unlock()

	if len(keys) > 0 {
		names := make([]string, 0, len(keys))
		for k := range keys {
			names = append(names, k)
		}
		if err := c.l2.Delete(ctx, names...); err != nil {
			return err
		}
	}
	for p := range patterns {
		if err := c.l2.DeletePattern(ctx, p); err != nil {
			return err
		}
	}

	c.mu.Lock()
	for k, v := range keys {
		if c.stale[k] == v {
			delete(c.stale, k)
		}
	}
	for p, v := range patterns {
		if c.patterns[p] == v {
			delete(c.patterns, p)
		}
	}
	c.mu.Unlock()
	return nil
}

// PendingInvalidations reports how many deletes are waiting to reach Redis.
func (c *MultiLevelCache) PendingInvalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stale) + len(c.patterns)
}

func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	if c.breaker.GetState() == CircuitBreakerOpen {
		return ErrCacheDown
	}
	return c.l2.Health(ctx)
}

func (c *MultiLevelCache) Metrics() *CacheMetrics {
	return c.metrics
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":       c.l1.Stats(),
		"breaker":  c.breaker.GetStats(),
		"metrics":  c.metrics.Snapshot(),
		"hit_rate": c.metrics.HitRate(),
		"pending":  c.PendingInvalidations(),
	}
	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}
	return stats
}

func (c *MultiLevelCache) Close() error {
	_ = c.l1.Close()
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}
