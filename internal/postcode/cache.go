// Pricecast - London Residential Price Prediction
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pricecast

package postcode

import (
	"time"

	"github.com/tomtom215/pricecast/internal/cache"
)

type cacheEntry struct {
	district string
	ok       bool
}

// Cache remembers single-lookup outcomes, including "not found".
type Cache struct {
	lru *cache.LRU[cacheEntry]
}

// NewCache returns an empty cache with the default capacity and TTL.
func NewCache() *Cache {
	return NewCacheSize(0, 0)
}

// NewCacheSize returns an empty cache bounded to capacity entries, each
// kept for ttl. Non-positive values select the cache package defaults.
func NewCacheSize(capacity int, ttl time.Duration) *Cache {
	return &Cache{lru: cache.NewLRU[cacheEntry](capacity, ttl)}
}

// Get returns the cached outcome for key. hit is false when key is not
// cached; ok is false for a cached "not found".
func (c *Cache) Get(key string) (district string, ok, hit bool) {
	e, hit := c.lru.Get(key)
	return e.district, e.ok, hit
}

// Put stores an outcome.
func (c *Cache) Put(key, district string, ok bool) {
	c.lru.Add(key, cacheEntry{district: district, ok: ok})
}

// Len returns the number of cached keys.
func (c *Cache) Len() int { return c.lru.Len() }

// Reset drops every entry.
func (c *Cache) Reset() { c.lru.Clear() }
