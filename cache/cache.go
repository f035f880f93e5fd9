package cache

import (
	"sync"
	"time"
)

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time // zero means no expiration
}

func (item cacheItem[V]) expired(now time.Time) bool {
	return !item.expiresAt.IsZero() && now.After(item.expiresAt)
}

// Cache is a thread-safe, generic cache with TTL support. Expired items are
// removed lazily on access or by DeleteExpired.
type Cache[K comparable, V any] struct {
	mu         sync.RWMutex
	items      map[K]cacheItem[V]
	defaultTTL time.Duration
	now        func() time.Time
}

// Option is a functional option type for Cache configuration.
type Option[K comparable, V any] func(*Cache[K, V])

// WithDefaultTTL sets the TTL used by Set and GetOrLoad. Zero disables expiry.
func WithDefaultTTL[K comparable, V any](ttl time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.defaultTTL = ttl
	}
}

// WithClock replaces the time source, mostly for tests.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCache[K comparable, V any](opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		items: make(map[K]cacheItem[V]),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set adds or updates an item with the default TTL.
func (c *Cache[K, V]) Set(k K, v V) {
	c.SetWithTTL(k, v, c.defaultTTL)
}

// SetWithTTL adds or updates an item. A zero ttl never expires, a negative
// ttl deletes the key.
func (c *Cache[K, V]) SetWithTTL(k K, v V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl < 0 {
		delete(c.items, k)
		return
	}
	item := cacheItem[V]{value: v}
	if ttl > 0 {
		item.expiresAt = c.now().Add(ttl)
	}
	c.items[k] = item
}

// Get returns the value and true if the key exists and has not expired.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	var zero V
	c.mu.RLock()
	item, ok := c.items[k]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if item.expired(c.now()) {
		c.mu.Lock()
		if cur, still := c.items[k]; still && cur.expired(c.now()) {
			delete(c.items, k)
		}
		c.mu.Unlock()
		return zero, false
	}
	return item.value, true
}

// GetOrLoad returns the cached value for k, or calls load and caches its
// result when load succeeds. Errors are never cached.
func (c *Cache[K, V]) GetOrLoad(k K, load func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(k); ok {
		return v, true, nil
	}
	v, err := load()
	if err != nil {
		var zero V
		return zero, false, err
	}
	c.Set(k, v)
	return v, false, nil
}

// Delete removes an item from the cache.
func (c *Cache[K, V]) Delete(k K) {
	c.mu.Lock()
	delete(c.items, k)
	c.mu.Unlock()
}

// DeleteExpired removes every expired item.
func (c *Cache[K, V]) DeleteExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, item := range c.items {
		if item.expired(now) {
			delete(c.items, k)
		}
	}
}

// Clean removes all items.
func (c *Cache[K, V]) Clean() {
	c.mu.Lock()
	c.items = make(map[K]cacheItem[V])
	c.mu.Unlock()
}

// Len counts stored items, including expired ones not yet collected.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
