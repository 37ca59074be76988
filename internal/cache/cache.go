// Package cache provides a small TTL cache in front of the backing-store
// list queries. Write paths invalidate keys explicitly; reads within the
// TTL are served without touching the store.
package cache

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value     any
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	// gens counts invalidations per key. A compute started before an
	// invalidation carries a stale generation and its result is discarded
	// instead of cached.
	gens  map[string]uint64
	group singleflight.Group
	now   func() time.Time
}

func New() *Cache {
	return NewWithNow(time.Now)
}

func NewWithNow(now func() time.Time) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		gens:    make(map[string]uint64),
		now:     now,
	}
}

// Get returns the cached value for key. Expired entries are treated as
// absent.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL and lazily sweeps entries
// that have already expired.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
}

// Delete invalidates key. Every write path that changes data behind a
// cached query calls this before returning. An in-flight compute for the
// key is forgotten so later callers recompute, and its eventual result is
// not cached.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.gens[key]++
	c.mu.Unlock()
	c.group.Forget(key)
}

// DeletePrefix invalidates every key with the given prefix, including keys
// whose compute is still in flight. Used when a broadcast write affects
// all per-user variants of a query.
func (c *Cache) DeletePrefix(prefix string) {
	c.mu.Lock()
	var forget []string
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	for k := range c.gens {
		if strings.HasPrefix(k, prefix) {
			c.gens[k]++
			forget = append(forget, k)
		}
	}
	c.mu.Unlock()
	for _, k := range forget {
		c.group.Forget(k)
	}
}

// GetOrSet returns the cached value for key, computing and storing it on
// miss. Concurrent misses for the same key run compute once and share the
// result. A failed compute is returned to every waiter and never cached.
// A Delete or DeletePrefix racing the compute wins: the computed value is
// returned to its waiters but not cached.
func (c *Cache) GetOrSet(key string, ttl time.Duration, compute func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		gen := c.generation(key)
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.setIfGeneration(key, v, ttl, gen)
		return v, nil
	})
	return v, err
}

// generation reads the key's invalidation counter, registering the key so
// a prefix invalidation can see the in-flight compute.
func (c *Cache) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.gens[key]; !ok {
		c.gens[key] = 0
	}
	return c.gens[key]
}

func (c *Cache) setIfGeneration(key string, value any, ttl time.Duration, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		return
	}
	now := c.now()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
}
