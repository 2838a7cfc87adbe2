// Package cache provides a generic, thread-safe LRU cache with metrics.
//
// The validator uses it to memoize compiled rulesets keyed by profile URL
// and ValueSet expansions keyed by canonical URL. Both are expensive to
// build and immutable once built, so an LRU with idempotent inserts fits.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Cache is a generic thread-safe LRU cache.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]*list.Element
	order    *list.List
	capacity int

	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
	sets   atomic.Uint64
}

// pair is the payload stored in the LRU list.
type pair[K comparable, V any] struct {
	key   K
	value V
}

// New creates a Cache holding at most capacity entries. When full, the
// least recently used entry is evicted.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 128
	}
	return &Cache[K, V]{
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
	}
}

// Get retrieves a value and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	c.hits.Add(1)
	c.order.MoveToFront(el)
	return el.Value.(*pair[K, V]).value, true
}

// Set adds or updates an entry, evicting the oldest if at capacity.
func (c *Cache[K, V]) Set(key K, value V) {
	c.sets.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

// set inserts without taking the lock. Must be called with mu held.
func (c *Cache[K, V]) set(key K, value V) {
	if el, ok := c.items[key]; ok {
		el.Value.(*pair[K, V]).value = value
		c.order.MoveToFront(el)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictOldest()
	}

	c.items[key] = c.order.PushFront(&pair[K, V]{key: key, value: value})
}

// evictOldest removes the least recently used entry. Must be called with
// mu held.
func (c *Cache[K, V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	delete(c.items, oldest.Value.(*pair[K, V]).key)
	c.order.Remove(oldest)
	c.evicts.Add(1)
}

// Delete removes an entry.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		delete(c.items, key)
		c.order.Remove(el)
	}
}

// Len returns the current number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear removes all entries. Metrics are preserved.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element, c.capacity)
	c.order.Init()
}

// GetOrSet returns the cached value for key, computing and storing it via
// fn on a miss. Inserts are idempotent: if two goroutines race on the same
// key, both observe a single stored value.
func (c *Cache[K, V]) GetOrSet(key K, fn func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.order.MoveToFront(el)
		return el.Value.(*pair[K, V]).value
	}

	c.misses.Add(1)
	value := fn()
	c.set(key, value)
	c.sets.Add(1)
	return value
}

// GetOrSetErr is like GetOrSet for computations that can fail. A failed
// computation is not cached, so a later call retries it.
func (c *Cache[K, V]) GetOrSetErr(key K, fn func() (V, error)) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.order.MoveToFront(el)
		return el.Value.(*pair[K, V]).value, nil
	}

	c.misses.Add(1)
	value, err := fn()
	if err != nil {
		var zero V
		return zero, err
	}
	c.set(key, value)
	c.sets.Add(1)
	return value, nil
}

// Stats holds cache counters.
type Stats struct {
	Size     int
	Capacity int
	Hits     uint64
	Misses   uint64
	Evicts   uint64
	Sets     uint64
	HitRate  float64
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	size := len(c.items)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Size:     size,
		Capacity: c.capacity,
		Hits:     hits,
		Misses:   misses,
		Evicts:   c.evicts.Load(),
		Sets:     c.sets.Load(),
		HitRate:  hitRate,
	}
}
