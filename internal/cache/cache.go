package cache

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 256

// Cache is a thread-safe LRU cache with a fixed capacity.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*entry[K, V]
	root     entry[K, V] // ring sentinel: root.next is newest, root.prev oldest
	capacity int
	onEvict  func(K, V)

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	prev, next *entry[K, V]
}

type evicted[K comparable, V any] struct {
	key   K
	value V
}

// New creates a cache holding at most capacity entries.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache[K, V]{
		entries:  make(map[K]*entry[K, V]),
		capacity: capacity,
	}
	c.root.prev, c.root.next = &c.root, &c.root
	return c
}

func (c *Cache[K, V]) unlink(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}

func (c *Cache[K, V]) pushFront(e *entry[K, V]) {
	e.prev = &c.root
	e.next = c.root.next
	c.root.next.prev = e
	c.root.next = e
}

func (c *Cache[K, V]) touch(e *entry[K, V]) {
	if c.root.next == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

// OnEvict sets a callback for entries dropped by eviction, Remove or Clear.
// Replaced values passed to Put are reported too.
func (c *Cache[K, V]) OnEvict(fn func(K, V)) {
	c.mu.Lock()
	c.onEvict = fn
	c.mu.Unlock()
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.touch(e)
	c.hits.Add(1)
	return e.value, true
}

// Peek returns the value for key without touching recency or statistics.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key, evicting the least recently used entries
// when the cache is full.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	var dropped []evicted[K, V]
	if e, ok := c.entries[key]; ok {
		dropped = append(dropped, evicted[K, V]{key, e.value})
		e.value = value
		c.touch(e)
	} else {
		for len(c.entries) >= c.capacity {
			oldest := c.root.prev
			c.unlink(oldest)
			delete(c.entries, oldest.key)
			dropped = append(dropped, evicted[K, V]{oldest.key, oldest.value})
			c.evictions.Add(1)
		}
		e := &entry[K, V]{key: key, value: value}
		c.entries[key] = e
		c.pushFront(e)
	}
	fn := c.onEvict
	c.mu.Unlock()

	notify(fn, dropped)
}

// GetOrCreate returns the cached value for key or stores the result of
// create. create runs without the lock held; if two callers race, the
// first stored value wins and the loser's value is passed to the eviction
// callback.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return v, err
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.touch(e)
		winner := e.value
		fn := c.onEvict
		c.mu.Unlock()
		notify(fn, []evicted[K, V]{{key, v}})
		return winner, nil
	}
	c.mu.Unlock()
	c.Put(key, v)
	return v, nil
}

// Remove drops key. It reports whether the key was present.
func (c *Cache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.unlink(e)
		delete(c.entries, key)
	}
	fn := c.onEvict
	c.mu.Unlock()

	if ok {
		notify(fn, []evicted[K, V]{{key, e.value}})
	}
	return ok
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	dropped := make([]evicted[K, V], 0, len(c.entries))
	for k, e := range c.entries {
		dropped = append(dropped, evicted[K, V]{k, e.value})
	}
	c.entries = make(map[K]*entry[K, V])
	c.root.prev, c.root.next = &c.root, &c.root
	fn := c.onEvict
	c.mu.Unlock()

	notify(fn, dropped)
}

// Keys returns the keys from most to least recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, len(c.entries))
	for e := c.root.next; e != &c.root; e = e.next {
		keys = append(keys, e.key)
	}
	return keys
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the maximum number of entries.
func (c *Cache[K, V]) Capacity() int { return c.capacity }

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Len:       c.Len(),
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		HitRate:   rate,
		Evictions: c.evictions.Load(),
	}
}

func notify[K comparable, V any](fn func(K, V), dropped []evicted[K, V]) {
	if fn == nil {
		return
	}
	for _, d := range dropped {
		fn(d.key, d.value)
	}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the maximum number of entries.
	Capacity int
	// Hits is the number of Get calls that found their key.
	Hits uint64
	// Misses is the number of Get calls that did not.
	Misses uint64
	// HitRate is Hits / (Hits + Misses), or 0 before any lookup.
	HitRate float64
	// Evictions counts entries dropped to make room.
	Evictions uint64
}
