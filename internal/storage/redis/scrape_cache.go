package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kol-scoreboard/internal/storage"
)

// DefaultKeyPrefix namespaces scrape entries in a shared Redis.
const DefaultKeyPrefix = "kolscore:scrape:"

// ScrapeCache implements storage.ScrapeCache on Redis string keys with TTL.
type ScrapeCache struct {
	client *redis.Client
	prefix string
}

// NewClient parses a redis:// URL and verifies the server answers PING.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewScrapeCache wraps client. An empty prefix uses DefaultKeyPrefix.
func NewScrapeCache(client *redis.Client, prefix string) *ScrapeCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &ScrapeCache{client: client, prefix: prefix}
}

// Get returns the cached value for key.
func (c *ScrapeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return b, true, nil
}

// Set stores value under key. A non-positive ttl stores without expiry.
func (c *ScrapeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

var _ storage.ScrapeCache = (*ScrapeCache)(nil)
