package ratelimit

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "plugin-store:ratelimit:"

// RedisLimiter shares windows between instances through redis. Each key is
// a counter that expires one window after its first hit.
type RedisLimiter struct {
	client *redis.Client
	rate   Rate
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, rate Rate) *RedisLimiter {
	return &RedisLimiter{client: client, rate: rate}
}

// NewRedisLimiterFromURL parses a redis:// URL and connects lazily.
func NewRedisLimiterFromURL(redisURL string, rate Rate) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return NewRedisLimiter(redis.NewClient(opts), rate), nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.client.Get(ctx, keyPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return l.rate.Limit > 0, nil
	}
	if err != nil {
		return false, fmt.Errorf("read rate limit counter: %w", err)
	}

	return count < l.rate.Limit, nil
}

func (l *RedisLimiter) Hit(ctx context.Context, key string) error {
	count, err := l.client.Incr(ctx, keyPrefix+key).Result()
	if err != nil {
		return fmt.Errorf("increment rate limit counter: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, keyPrefix+key, l.rate.Window).Err(); err != nil {
			return fmt.Errorf("set rate limit window: %w", err)
		}
	}

	return nil
}

func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
