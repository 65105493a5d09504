package pulse

import (
	"sync"
	"time"
)

// Cache holds transformed snapshots for a short TTL so dashboard loads
// do not hammer the upstream aggregate endpoint.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	snapshot  Snapshot
	expiresAt time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

func (c *Cache) Get(key string) (Snapshot, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return Snapshot{}, false
	}
	if time.Now().UTC().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Snapshot{}, false
	}
	return entry.snapshot, true
}

func (c *Cache) Set(key string, snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		snapshot:  snapshot,
		expiresAt: time.Now().UTC().Add(c.ttl),
	}
}
