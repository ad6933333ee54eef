// Package cache provides a bounded, expiring in-memory LRU cache. It backs
// single-use bookkeeping (consumed linking tokens) when no Redis is configured.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time // zero means no expiry
}

func (e *entry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// LRUCache is a fixed-capacity cache evicting the least recently used entry.
// Expired entries are treated as absent and dropped lazily.
type LRUCache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List
	now      func() time.Time
}

// NewLRUCache panics if capacity is not positive.
func NewLRUCache[K comparable, V any](capacity int) *LRUCache[K, V] {
	if capacity <= 0 {
		panic("LRU cache capacity must be positive")
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *LRUCache[K, V]) WithClock(now func() time.Time) *LRUCache[K, V] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// Get returns the live value for key.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.lookup(key); ok {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key. A non-positive ttl never expires.
func (c *LRUCache[K, V]) Put(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, ttl)
}

// PutIfAbsent stores value only when key has no live entry, and reports
// whether it did. The check and the write are atomic.
func (c *LRUCache[K, V]) PutIfAbsent(key K, value V, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookup(key); ok {
		return false
	}
	c.put(key, value, ttl)
	return true
}

// Remove deletes key and reports whether a live entry existed.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.lookup(key)
	if elem, exists := c.items[key]; exists {
		c.remove(elem)
	}
	return ok
}

// Len counts stored entries, including expired ones not yet dropped.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRUCache[K, V]) lookup(key K) (*entry[K, V], bool) {
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := elem.Value.(*entry[K, V])
	if e.expired(c.now()) {
		c.remove(elem)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return e, true
}

func (c *LRUCache[K, V]) put(key K, value V, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = c.now().Add(ttl)
	}
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry[K, V])
		e.value, e.expiresAt = value, exp
		c.order.MoveToFront(elem)
		return
	}
	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value, expiresAt: exp})
	if c.order.Len() > c.capacity {
		c.remove(c.order.Back())
	}
}

func (c *LRUCache[K, V]) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry[K, V]).key)
}
