// Package cache implements the process-wide score cache from spec §4.6/§5:
// keyed per (symbol, timeframe, bar-timestamp), bounded, TTL-based, with a
// single-writer-per-key policy so two goroutines never compute the same key
// concurrently. Grounded on the teacher's internal/data/cache/ttl.go
// (cacheEntry{value,expires,accessed,hits}, background cleanup goroutine,
// LRU eviction), with the single-flight discipline added via
// golang.org/x/sync/singleflight per the teacher's own use of
// golang.org/x/sync elsewhere in its concurrency-sensitive packages.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ScoreCache is a bounded, TTL-expiring, single-flight-protected cache for
// TimeframeScore values (or any value keyed by (symbol, timeframe, ts)).
type ScoreCache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	maxEntries int
	ttl        time.Duration
	flight     singleflight.Group

	stopCh chan struct{}
	once   sync.Once

	hits, misses int64
}

type entry struct {
	value    interface{}
	expires  time.Time
	accessed time.Time
}

// NewScoreCache builds a cache bounded to maxEntries with the given TTL and
// starts its background expiry sweep.
func NewScoreCache(maxEntries int, ttl time.Duration) *ScoreCache {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	c := &ScoreCache{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		stopCh:     make(chan struct{}),
	}
	go c.sweep()
	return c
}

// Get returns the cached value for key if present and unexpired.
func (c *ScoreCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	e.accessed = time.Now()
	return e.value, true
}

// Set stores value under key with the cache's configured TTL.
func (c *ScoreCache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictLRULocked()
	}
	now := time.Now()
	c.entries[key] = &entry{value: value, expires: now.Add(c.ttl), accessed: now}
}

// GetOrCompute returns the cached value for key, computing it exactly once
// across concurrent callers (spec §5 "single-writer-per-key") when absent
// or expired.
func (c *ScoreCache) GetOrCompute(key string, compute func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.Get(key); ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return v, nil
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		value, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(key, value)
		return value, nil
	})
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Clear empties the cache. Called whenever the active weights configuration
// changes (spec §4.6 "purged on any change to the active weights
// configuration", §4.12 "activation transition invalidates caches").
func (c *ScoreCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Stats reports hit/miss/size counters for observability.
type Stats struct {
	Hits, Misses int64
	Entries      int
	HitRatio     float64
}

func (c *ScoreCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	ratio := 0.0
	if total > 0 {
		ratio = float64(c.hits) / float64(total)
	}
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries), HitRatio: ratio}
}

// Stop halts the background expiry sweep. Safe to call more than once.
func (c *ScoreCache) Stop() {
	c.once.Do(func() { close(c.stopCh) })
}

func (c *ScoreCache) evictLRULocked() {
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.accessed.Before(oldestAt) {
			oldestKey, oldestAt = k, e.accessed
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *ScoreCache) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *ScoreCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
}
