package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"kol-scoreboard/internal/storage"
)

// DefaultCacheSize bounds the number of cached addresses.
const DefaultCacheSize = 2048

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// ScrapeCache is an in-process implementation of storage.ScrapeCache.
// Entries expire after the per-Set ttl or the cache-wide ttl, whichever is first.
type ScrapeCache struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, cacheEntry]
	now   func() time.Time
}

// NewScrapeCache creates a cache holding at most size entries for at most maxTTL.
func NewScrapeCache(size int, maxTTL time.Duration) *ScrapeCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &ScrapeCache{
		cache: expirable.NewLRU[string, cacheEntry](size, nil, maxTTL),
		now:   time.Now,
	}
}

// Get returns the cached value for key.
func (c *ScrapeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.cache.Remove(key)
		return nil, false, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set stores value under key. A non-positive ttl keeps the cache-wide ttl.
func (c *ScrapeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := cacheEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, entry)
	return nil
}

// Len returns the number of cached entries.
func (c *ScrapeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

var _ storage.ScrapeCache = (*ScrapeCache)(nil)
