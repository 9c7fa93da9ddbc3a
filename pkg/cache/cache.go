// Package cache provides a small in-memory TTL cache used to memoize
// reconciled prices, quotes and balance lookups. Expiry is lazy: a read
// past the entry's deadline counts as a miss and discards the entry.
package cache

import (
	"container/list"
	"sync"
	"time"
)

const defaultCapacity = 1024

type entry struct {
	key       string
	value     any
	createdAt time.Time
	expiresAt time.Time
	elem      *list.Element
}

// Cache is a capacity-bounded TTL cache. When full it evicts the
// oldest-created entry first, regardless of access recency, so eviction
// stays O(1) and predictable. Safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	byAge    *list.List // front = oldest created
	capacity int
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity bounds the number of live entries.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[string]*entry),
		byAge:    list.New(),
		capacity: defaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the live value for key, or ok=false on miss or expiry.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		c.remove(e)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttl. An existing entry is replaced and
// its creation time restarts.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.remove(old)
	}
	for len(c.entries) >= c.capacity {
		oldest := c.byAge.Front()
		if oldest == nil {
			break
		}
		c.remove(oldest.Value.(*entry))
	}

	now := c.now()
	e := &entry{
		key:       key,
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	}
	e.elem = c.byAge.PushBack(e)
	c.entries[key] = e
}

// Invalidate drops the entry for key if present.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
}

// FlushAll drops every entry.
func (c *Cache) FlushAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.byAge.Init()
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// caller must hold c.mu
func (c *Cache) remove(e *entry) {
	c.byAge.Remove(e.elem)
	delete(c.entries, e.key)
}
