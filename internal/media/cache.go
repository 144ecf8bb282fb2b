package media

import (
	"maps"
	"strings"
	"sync"
	"time"
)

// Cache maps vocabulary words to resolved playback durations. Entries are
// never evicted: the vocabulary is small and fixed. Concurrent writers for
// the same word are last-write-wins, which is harmless because they compute
// the same value.
type Cache struct {
	mu sync.RWMutex
	m  map[string]time.Duration
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{m: make(map[string]time.Duration)}
}

// Get returns the cached duration for word.
func (c *Cache) Get(word string) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.m[strings.ToUpper(word)]
	return d, ok
}

// Put stores d for word.
func (c *Cache) Put(word string, d time.Duration) {
	c.mu.Lock()
	c.m[strings.ToUpper(word)] = d
	c.mu.Unlock()
}

// Len returns the number of cached words.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Snapshot returns a copy of the cache contents.
func (c *Cache) Snapshot() map[string]time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.m)
}

// Reset empties the cache.
func (c *Cache) Reset() {
	c.mu.Lock()
	clear(c.m)
	c.mu.Unlock()
}
