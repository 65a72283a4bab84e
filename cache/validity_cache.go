// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cache provides the in-memory layer of the decryption grant cache.
package cache

import (
	"sync"
)

// ValidityCache caches values whose freshness is a property of the value
// itself, such as a grant with an absolute validity window, rather than of
// insert time. Get takes the caller's validity predicate so a value that has
// lapsed, or no longer covers the request, reads as a miss.
type ValidityCache[K comparable, V any] struct {
	lock sync.RWMutex
	data map[K]V
}

func NewValidityCache[K comparable, V any]() *ValidityCache[K, V] {
	return &ValidityCache[K, V]{
		data: make(map[K]V),
	}
}

// Get returns the cached value for key if it exists and valid accepts it.
// An invalid value is evicted so later writers do not race a stale read.
func (c *ValidityCache[K, V]) Get(key K, valid func(V) bool) (V, bool) {
	c.lock.RLock()
	value, exists := c.data[key]
	c.lock.RUnlock()
	if !exists {
		return *new(V), false
	}
	if valid != nil && !valid(value) {
		c.lock.Lock()
		delete(c.data, key)
		c.lock.Unlock()
		return *new(V), false
	}
	return value, true
}

// Put stores value under key, replacing any previous value. Last writer wins.
func (c *ValidityCache[K, V]) Put(key K, value V) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.data[key] = value
}

// Evict drops the value for key if present.
func (c *ValidityCache[K, V]) Evict(key K) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.data, key)
}

// Len returns the number of cached values, valid or not.
func (c *ValidityCache[K, V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.data)
}
