package snapshot

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	values    []string
	expiresAt time.Time
}

// MemoryCache is the in-process Cache. It favors clarity over performance,
// like the rest of the in-memory stores: a mutex-guarded map with expiry
// stamps, swept lazily on writes.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	// now is swappable so TTL behavior is testable without sleeping.
	now func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Capture(_ context.Context, key Key, values []string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	c.entries[key.String()] = memoryEntry{
		values:    append([]string(nil), values...),
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *MemoryCache) Consume(_ context.Context, key Key) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key.String()
	entry, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	delete(c.entries, k)
	if c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.values, true
}

// sweepLocked drops expired entries; called with the mutex held.
func (c *MemoryCache) sweepLocked() {
	now := c.now()
	for k, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// Len reports live entries, expired ones included until the next sweep.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
