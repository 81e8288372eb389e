// Package cache provides the capacity and TTL bounded cache used by the
// vulnerability resolver and the incremental state store.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Amicidal/sigmachad-sub001/internal/domain/interfaces/gateways"
)

// DefaultTTL is the freshness window for vulnerability lookups
const DefaultTTL = 24 * time.Hour

// DefaultCapacity bounds the number of retained entries
const DefaultCapacity = 10000

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// TTLCache is an LRU cache whose entries go stale after a TTL. Stale entries
// are kept until evicted by capacity so they can back a failed refresh.
type TTLCache[V any] struct {
	mu    sync.Mutex
	items *lru.Cache[string, entry[V]]
	ttl   time.Duration
	now   func() time.Time
}

var _ gateways.Cache[int] = (*TTLCache[int])(nil)

// New creates a cache. Non-positive arguments select the defaults; a
// negative ttl is treated as "never fresh".
func New[V any](capacity int, ttl time.Duration) (*TTLCache[V], error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	items, err := lru.New[string, entry[V]](capacity)
	if err != nil {
		return nil, err
	}
	return &TTLCache[V]{items: items, ttl: ttl, now: time.Now}, nil
}

// WithClock replaces the time source (tests)
func (c *TTLCache[V]) WithClock(now func() time.Time) *TTLCache[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	return c
}

// Get returns the value when it is younger than the TTL
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items.Get(key)
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetStale returns the value regardless of age
func (c *TTLCache[V]) GetStale(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value and resets its age
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(key, entry[V]{value: value, storedAt: c.now()})
}

// Delete removes a key
func (c *TTLCache[V]) Delete(key string) {
	c.items.Remove(key)
}

// Len returns the number of retained entries, stale ones included
func (c *TTLCache[V]) Len() int {
	return c.items.Len()
}

// Purge drops every entry
func (c *TTLCache[V]) Purge() {
	c.items.Purge()
}
