package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// TokenCache implements ports.TokenCache using Redis.
type TokenCache struct {
	client goredis.UniversalClient
	prefix string
}

// NewTokenCache creates a new Redis-backed token data cache.
func NewTokenCache(client goredis.UniversalClient) *TokenCache {
	return &TokenCache{
		client: client,
		prefix: "tokeninfo:",
	}
}

// Get returns nil, nil if the key does not exist.
func (c *TokenCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis token cache get: %w", err)
	}
	return val, nil
}

// Set stores a payload with TTL.
func (c *TokenCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis token cache set: %w", err)
	}
	return nil
}
