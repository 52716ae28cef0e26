package gate

import (
	"sync"
	"time"

	"github.com/domainposture/posture-cli/internal/scan"
)

const (
	// DefaultCacheTTL is how long a scan aggregate stays fresh. Posture
	// changes on the scale of DNS TTLs and certificate issuance, so
	// minutes is plenty.
	DefaultCacheTTL = 15 * time.Minute

	cacheCleanupInterval = time.Minute
)

type cacheEntry struct {
	aggregate *scan.Aggregate
	expiresAt time.Time
}

// Cache holds the most recent aggregate per normalized domain. A new scan
// of the same domain replaces the entry wholesale; entries are never
// merged. All operations on one key are atomic under the cache mutex.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]cacheEntry
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewCache builds a cache with the given TTL (non-positive selects the
// default) and starts its background eviction loop.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get returns the cached aggregate for a domain, if present and fresh.
// Expired entries are evicted on sight.
func (c *Cache) Get(domain string) (*scan.Aggregate, bool) {
	key := scan.NormalizeDomain(domain)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.aggregate, true
}

// Set stores an aggregate under its normalized domain, superseding any
// previous entry for that domain.
func (c *Cache) Set(domain string, aggregate *scan.Aggregate) {
	if aggregate == nil {
		return
	}
	key := scan.NormalizeDomain(domain)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		aggregate: aggregate,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Len reports the number of cached entries, including any not yet evicted
// expired ones.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the eviction loop. Safe to call more than once.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(cacheCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) evictExpired() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
