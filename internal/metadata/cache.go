package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nftcred/internal/domain"
)

// DefaultCacheTTL is the retention of cached metadata documents.
// Token metadata is effectively immutable once published, so the TTL
// exists only to bound storage.
const DefaultCacheTTL = 24 * time.Hour

// Cache stores resolved metadata documents keyed by normalized URI.
// A Get miss returns (nil, nil).
type Cache interface {
	Get(ctx context.Context, uri string) (domain.TokenMetadata, error)
	Set(ctx context.Context, uri string, meta domain.TokenMetadata) error
}

// RedisCache implements Cache on a Redis backend.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed metadata cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

var _ Cache = (*RedisCache)(nil)

func cacheKey(uri string) string {
	return "nftcred:metadata:" + uri
}

func (c *RedisCache) Get(ctx context.Context, uri string) (domain.TokenMetadata, error) {
	data, err := c.client.Get(ctx, cacheKey(uri)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var meta domain.TokenMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return meta, nil
}

func (c *RedisCache) Set(ctx context.Context, uri string, meta domain.TokenMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(uri), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
