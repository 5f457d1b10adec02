package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyCache implements ports.IdempotencyCache on Redis using SETNX
// reservations. It is an advisory fast path only; the database unique index
// remains the authoritative dedup.
type IdempotencyCache struct {
	client *redis.Client
	prefix string
}

// NewIdempotencyCache creates a Redis-backed idempotency cache
func NewIdempotencyCache(client *redis.Client, prefix string) *IdempotencyCache {
	return &IdempotencyCache{client: client, prefix: prefix}
}

// Reserve reserves the key for ttl; returns false when another request holds it
func (c *IdempotencyCache) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.fullKey(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return ok, nil
}

// Release drops the reservation so a failed request can be retried immediately
func (c *IdempotencyCache) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func (c *IdempotencyCache) fullKey(key string) string {
	return c.prefix + ":" + key
}
