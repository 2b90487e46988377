// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a cache with per-entry expiry. Entries carry their own
// deadline because cached values (decryption authorizations in particular)
// have individually negotiated lifetimes rather than one cache-wide TTL.
// Expired entries are treated as absent and removed lazily on read.
type TTLCache[K comparable, V any] struct {
	lock sync.RWMutex
	data map[K]entry[V]
}

func NewTTLCache[K comparable, V any]() *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data: make(map[K]entry[V]),
	}
}

// Get returns the cached value for key if it is present and not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.lock.RLock()
	item, exists := c.data[key]
	c.lock.RUnlock()

	if !exists {
		var zero V
		return zero, false
	}
	if !time.Now().Before(item.expiresAt) {
		c.lock.Lock()
		// Re-check under the write lock; another goroutine may have
		// replaced the entry with a fresh one.
		if current, ok := c.data[key]; ok && current.expiresAt.Equal(item.expiresAt) {
			delete(c.data, key)
		}
		c.lock.Unlock()
		var zero V
		return zero, false
	}
	return item.value, true
}

// Put stores the value under key until expiresAt.
func (c *TTLCache[K, V]) Put(key K, value V, expiresAt time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.data[key] = entry[V]{value: value, expiresAt: expiresAt}
}

// Delete removes the entry for key, if any.
func (c *TTLCache[K, V]) Delete(key K) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.data, key)
}

// Purge removes every entry.
func (c *TTLCache[K, V]) Purge() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.data = make(map[K]entry[V])
}

// Len returns the number of entries, including any not yet lazily expired.
func (c *TTLCache[K, V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.data)
}
