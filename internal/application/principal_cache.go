package application

import (
	"sync"
	"time"
)

// principalCache keeps recently resolved principals so that every request
// does not hit the user directory.
type principalCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]principalCacheEntry
}

type principalCacheEntry struct {
	principal Principal
	expiresAt time.Time
}

func newPrincipalCache(ttl time.Duration, maxEntries int, now func() time.Time) *principalCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &principalCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]principalCacheEntry),
	}
}

func (c *principalCache) Get(userID string) (Principal, bool) {
	if c == nil {
		return Principal{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return Principal{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, userID)
		c.mu.Unlock()
		return Principal{}, false
	}
	return entry.principal, true
}

func (c *principalCache) Store(p Principal) {
	if c == nil || p.UserID == "" {
		return
	}
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[p.UserID] = principalCacheEntry{principal: p, expiresAt: expiry}
}

func (c *principalCache) Forget(userID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

func (c *principalCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *principalCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}
