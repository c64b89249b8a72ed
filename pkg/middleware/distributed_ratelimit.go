package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCounter is a fixed-window counter shared across instances. Counts
// live in Redis keyed per window so every instance sees the same numbers.
type RedisCounter struct {
	redis  *redis.Client
	prefix string
}

// NewRedisCounter creates a Redis-backed counter
func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisCounter{redis: client, prefix: prefix}
}

// Incr increments the key's counter, setting the window expiry on first use
func (c *RedisCounter) Incr(ctx context.Context, key string) (int64, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s", c.prefix, key)

	pipe := c.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("redis counter: %w", err)
	}

	// First hit in the window starts the clock
	remaining := ttl.Val()
	if remaining < 0 {
		remaining = Window
		if err := c.redis.Expire(ctx, redisKey, Window).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis counter: %w", err)
		}
	}

	return incr.Val(), remaining, nil
}

// Reset clears the counter for a key
func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	return c.redis.Del(ctx, fmt.Sprintf("%s:%s", c.prefix, key)).Err()
}

// Ping verifies Redis connectivity for health checks
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}
