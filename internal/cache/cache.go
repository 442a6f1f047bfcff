// Package cache provides a small TTL cache used to keep hot read models (the
// per-tenant module catalog, resolved permission sets) off the database on
// every request. Entries expire on their own; explicit invalidation exists
// for the paths where waiting out the TTL is not acceptable.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a bounded LRU with per-entry TTL. Safe for concurrent use.
type Cache[K comparable, V any] struct {
	lru *expirable.LRU[K, V]
}

// New constructs a cache holding up to size entries, each living at most ttl.
// Size zero means unbounded; ttl zero disables expiry.
func New[K comparable, V any](size int, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{lru: expirable.NewLRU[K, V](size, nil, ttl)}
}

// Get returns the cached value and whether it was present and fresh.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.lru.Get(key)
}

// Set stores the value under key, resetting its TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.lru.Add(key, value)
}

// Delete drops a single entry.
func (c *Cache[K, V]) Delete(key K) {
	c.lru.Remove(key)
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.lru.Purge()
}

// Len reports the current entry count, expired entries included until their
// next sweep.
func (c *Cache[K, V]) Len() int {
	return c.lru.Len()
}
