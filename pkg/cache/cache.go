// Package cache implements two lookup caches. The Domain Registry Cache
// (which domain is reachable for a capability) is TTL-bounded and built
// on the single-flight-guarded TTL cache in this file, so concurrent
// lookups for the same key never cause a stampede of duplicate upstream
// calls. The package/data index (RefreshingIndex) is a periodic full
// refresh, eventually consistent, and does not use the TTL cache.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher loads the current value for a key from the source of truth
// (a registry HTTP call, a DB query, etc).
type Fetcher[V any] func(ctx context.Context, key string) (V, error)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a single-flight-guarded, TTL-bounded cache: concurrent
// Get calls for the same missing/expired key block behind one in-flight
// Fetcher call instead of each issuing their own.
type TTLCache[V any] struct {
	mu      sync.RWMutex
	entries map[string]entry[V]
	ttl     time.Duration
	fetch   Fetcher[V]
	group   singleflight.Group
}

// New creates a TTLCache that calls fetch on a miss or expiry, caching
// the result for ttl.
func New[V any](ttl time.Duration, fetch Fetcher[V]) *TTLCache[V] {
	return &TTLCache[V]{entries: make(map[string]entry[V]), ttl: ttl, fetch: fetch}
}

// Get returns the cached value for key, refreshing it via Fetcher if
// absent or expired. Concurrent callers for the same key share one
// Fetcher call.
func (c *TTLCache[V]) Get(ctx context.Context, key string) (V, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(e.expiresAt) {
		return e.value, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check: another goroutine may have refreshed while we
		// queued for the singleflight group.
		c.mu.RLock()
		e, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && time.Now().Before(e.expiresAt) {
			return e.value, nil
		}
		fresh, err := c.fetch(ctx, key)
		if err != nil {
			var zero V
			return zero, err
		}
		c.mu.Lock()
		c.entries[key] = entry[V]{value: fresh, expiresAt: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		return fresh, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Invalidate drops a cached key, forcing the next Get to refresh it.
func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len reports the number of live (not necessarily unexpired) entries,
// for test assertions and metrics.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
