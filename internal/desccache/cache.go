// Package desccache provides the bounded description cache keyed by media
// fingerprints. Captioning calls dominate request cost and live feeds repeat
// frame content constantly, so memoizing fingerprint -> description cuts
// inference load without unbounded memory growth.
package desccache

import (
	"sync"

	"github.com/bdougie/livefeed/internal/fingerprint"
)

// DefaultCapacity bounds the cache when no explicit capacity is configured.
const DefaultCapacity = 100

// Cache maps fingerprints to previously computed descriptions. Entries are
// write-once and evicted in insertion order when the capacity is exceeded.
// Safe for concurrent use; lookups take a read lock, structural mutation
// (insert/evict) is serialized behind the write lock. A lookup racing an
// insert for the same key may miss while the fill is in flight.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	entries  map[fingerprint.Fingerprint]string
	order    []fingerprint.Fingerprint
}

// New creates a cache holding at most capacity entries. capacity <= 0
// disables caching entirely: every lookup misses and inserts are dropped.
func New(capacity int) *Cache {
	c := &Cache{capacity: capacity}
	if capacity > 0 {
		c.entries = make(map[fingerprint.Fingerprint]string, capacity)
		c.order = make([]fingerprint.Fingerprint, 0, capacity)
	}
	return c
}

// Lookup returns the cached description for fp, if present.
func (c *Cache) Lookup(fp fingerprint.Fingerprint) (string, bool) {
	if c.capacity <= 0 {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	desc, ok := c.entries[fp]
	return desc, ok
}

// Insert stores desc under fp, evicting the least-recently-inserted entry
// first when the cache is full. Entries are write-once: inserting an
// already-present key is a no-op, whatever the new value.
func (c *Cache) Insert(fp fingerprint.Fingerprint, desc string) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[fp]; exists {
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[fp] = desc
	c.order = append(c.order, fp)
}

// Len reports the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
