// Package memory implements the process-lifetime decision cache.
package memory

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/agroguard/agroguard/pkg/models"
)

// Cache is a bounded, concurrency-safe LRU of live decision results.
// Entries are never refreshed: while a key is present every Get returns the
// value stored by the first Put.
type Cache struct {
	lru    *expirable.LRU[string, models.CacheEntry]
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache holding at most maxEntries results. A ttl of zero
// keeps entries until they are evicted by size.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &Cache{lru: expirable.NewLRU[string, models.CacheEntry](maxEntries, nil, ttl)}
}

// Get returns a copy of the cached result for key.
func (c *Cache) Get(key string) (models.Result, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.Result.Clone(), true
}

// Peek looks up key without touching recency or hit counters.
func (c *Cache) Peek(key string) (models.CacheEntry, bool) {
	e, ok := c.lru.Peek(key)
	if !ok {
		return models.CacheEntry{}, false
	}
	e.Result = e.Result.Clone()
	return e, true
}

// Put stores a validated live result. An existing entry for key is kept.
func (c *Cache) Put(key string, result models.Result) {
	if _, ok := c.lru.Peek(key); ok {
		return
	}
	c.lru.Add(key, models.CacheEntry{Key: key, Result: result.Clone(), CreatedAt: time.Now().UTC()})
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() models.CacheStats {
	return models.CacheStats{
		Entries: int64(c.lru.Len()),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}

// Clear removes every entry. Counters are kept.
func (c *Cache) Clear() {
	c.lru.Purge()
}
