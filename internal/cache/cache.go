// Package cache provides the shared result cache for expensive aggregations:
// TTL expiry, bounded capacity, and single-flight execution so concurrent
// requests for the same key share one computation.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces the value for a cache key on a miss.
type ComputeFunc func(ctx context.Context) (any, error)

type entry struct {
	value      any
	computedAt time.Time
	expiresAt  time.Time
}

// Cache is a concurrency-safe result cache. It is created once per process
// and injected into the orchestrator; the entry table is its only shared
// mutable state.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int

	group singleflight.Group

	// test seam; defaults to time.Now
	now func() time.Time
}

// New returns a cache bounded to maxEntries. When the bound is exceeded the
// oldest half of the entries (by computedAt) is evicted.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Cache{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// GetOrCompute returns the cached value for key, or runs fn to produce it.
// At most one computation per key runs at a time; concurrent callers await
// its result. A failed computation is not cached, so the next caller
// retries.
//
// The computation runs on a context detached from the initiating caller:
// cancelling ctx abandons this caller's wait but lets the shared computation
// finish for everyone else still interested.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn ComputeFunc) (any, error) {
	if v, ok := c.get(key); ok {
		hitsTotal.Inc()
		return v, nil
	}
	missesTotal.Inc()

	ch := c.group.DoChan(key, func() (any, error) {
		v, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.put(key, v, ttl)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			sharedTotal.Inc()
		}
		return res.Val, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		// Expired; drop lazily.
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) put(key string, value any, ttl time.Duration) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, computedAt: now, expiresAt: now.Add(ttl)}
	if len(c.entries) > c.maxEntries {
		c.evictOldestHalf()
	}
}

// evictOldestHalf drops the older half of the entries by computedAt.
// Called with the lock held; the scan is proportional to the bound, which is
// small enough not to stall unrelated keys.
func (c *Cache) evictOldestHalf() {
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, at: e.computedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for _, a := range all[:len(all)/2] {
		delete(c.entries, a.key)
		evictionsTotal.Inc()
	}
}
