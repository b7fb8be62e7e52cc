package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value      V
	observedAt time.Time
}

// Cache is a bounded-cardinality map of last-known values with their
// observation time. Put keeps the newer of the stored and offered value, so
// concurrent writers converge on last-timestamp-wins per key. There is no
// eviction: keys are instruments or currencies, tens to low hundreds of them.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
}

func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]entry[V])}
}

// Put stores value under key unless the cache already holds a strictly newer
// entry. Reports whether the value was stored.
func (c *Cache[K, V]) Put(key K, value V, observedAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.entries[key]; ok && cur.observedAt.After(observedAt) {
		return false
	}
	c.entries[key] = entry[V]{value: value, observedAt: observedAt}
	return true
}

// Get returns the cached value and its age, or ok=false on a miss.
func (c *Cache[K, V]) Get(key K) (value V, age time.Duration, ok bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, 0, false
	}
	return e.value, time.Since(e.observedAt), true
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]K, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}
