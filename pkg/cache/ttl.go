// Package cache provides a key-scoped TTL cache for expensive,
// slowly-changing data such as per-region cost totals. Expiry is checked
// lazily on read; there is no background eviction goroutine.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value      any
	insertedAt time.Time
}

type inflight struct {
	done  chan struct{}
	value any
	err   error
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// HitRate returns hits/(hits+misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// TTLCache maps keys to values with a fixed time-to-live. An entry is
// never returned once its age reaches the TTL; stale entries are evicted
// lazily on the next write. Safe for concurrent use.
type TTLCache struct {
	ttl time.Duration

	mu    sync.Mutex
	data  map[string]entry
	loads map[string]*inflight
	stats Stats

	// onHit/onMiss mirror lookups into external metrics.
	onHit  func()
	onMiss func()

	// nowFunc lets tests inject a clock.
	nowFunc func() time.Time
}

// New creates a TTLCache with the given time-to-live.
func New(ttl time.Duration) *TTLCache {
	return &TTLCache{
		ttl:     ttl,
		data:    make(map[string]entry),
		loads:   make(map[string]*inflight),
		nowFunc: time.Now,
	}
}

// OnLookup registers callbacks invoked on every hit and miss.
func (c *TTLCache) OnLookup(onHit, onMiss func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHit = onHit
	c.onMiss = onMiss
}

// Get returns the cached value for key if its age is still below the TTL.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *TTLCache) getLocked(key string) (any, bool) {
	e, ok := c.data[key]
	if ok && c.nowFunc().Sub(e.insertedAt) < c.ttl {
		c.stats.Hits++
		if c.onHit != nil {
			c.onHit()
		}
		return e.value, true
	}
	c.stats.Misses++
	if c.onMiss != nil {
		c.onMiss()
	}
	return nil, false
}

// Set stores value under key unconditionally and sweeps any entries that
// have already expired.
func (c *TTLCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *TTLCache) setLocked(key string, value any) {
	now := c.nowFunc()
	for k, e := range c.data {
		if now.Sub(e.insertedAt) >= c.ttl {
			delete(c.data, k)
		}
	}
	c.data[key] = entry{value: value, insertedAt: now}
}

// GetOrLoad returns the cached value for key, or invokes loader exactly
// once for concurrent callers sharing the key. A successful load is
// stored; a failed load is not, so the next caller retries.
func (c *TTLCache) GetOrLoad(ctx context.Context, key string, loader func(ctx context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	if v, ok := c.getLocked(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	if fl, ok := c.loads[key]; ok {
		c.mu.Unlock()
		select {
		case <-fl.done:
			return fl.value, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	fl := &inflight{done: make(chan struct{})}
	c.loads[key] = fl
	c.mu.Unlock()

	fl.value, fl.err = loader(ctx)

	// The value must land in the store before the inflight marker goes
	// away, or a caller arriving in between would miss both and invoke
	// the loader a second time.
	c.mu.Lock()
	delete(c.loads, key)
	if fl.err == nil {
		c.setLocked(key, fl.value)
	}
	c.mu.Unlock()
	close(fl.done)

	return fl.value, fl.err
}

// Stats returns a copy of the hit/miss counters.
func (c *TTLCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Clear drops all entries, keeping the counters.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry)
}
