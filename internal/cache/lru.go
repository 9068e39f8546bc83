// Package cache provides the in-memory and persisted caches used by the
// embedding pipeline and the query path: a fixed-capacity LRU core with
// per-entry TTL, an embedding cache keyed by model and content hash, and
// a query result cache.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type lruEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// LRU is a fixed-capacity cache with per-entry TTL. The least recently
// used entry is evicted when capacity is exceeded. Expired entries are
// dropped lazily when touched, never proactively.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	index    map[string]*list.Element

	now func() time.Time
}

// NewLRU creates an LRU cache holding at most capacity entries, each
// living for ttl after insertion. A ttl of zero disables expiry.
func NewLRU[V any](capacity int, ttl time.Duration) *LRU[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[V]{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		index:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get returns the value for key and marks it most recently used.
// An expired entry is removed and reported as a miss.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.index[key]
	if !ok {
		return zero, false
	}

	ent := elem.Value.(*lruEntry[V])
	if c.expired(ent) {
		c.order.Remove(elem)
		delete(c.index, key)
		return zero, false
	}

	c.order.MoveToFront(elem)
	return ent.value, true
}

// Put inserts or replaces the value for key, resetting its TTL.
func (c *LRU[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.now().Add(c.ttl)
	}

	if elem, ok := c.index[key]; ok {
		ent := elem.Value.(*lruEntry[V])
		ent.value = value
		ent.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	c.index[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value, expiresAt: expiresAt})

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.index, oldest.Value.(*lruEntry[V]).key)
		}
	}
}

// Delete removes key if present.
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key]; ok {
		c.order.Remove(elem)
		delete(c.index, key)
	}
}

// Purge removes every entry.
func (c *LRU[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.index = make(map[string]*list.Element)
}

// Len returns the number of entries, including any that have expired
// but have not been touched since.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRU[V]) expired(ent *lruEntry[V]) bool {
	return !ent.expiresAt.IsZero() && c.now().After(ent.expiresAt)
}
