package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	t.Parallel()

	id := ClientID("10.0.0.1")
	assert.Len(t, id, 64)
	assert.NotContains(t, id, "10.0.0.1")
	assert.Equal(t, id, ClientID("10.0.0.1"))
	assert.NotEqual(t, id, ClientID("10.0.0.2"))

	assert.Equal(t, "increment:plugin:"+id, IncrementKey("plugin", id))
}

// exerciseLimiter checks the behaviour shared by every limiter; advance
// moves the limiter's clock forward.
func exerciseLimiter(t *testing.T, l Limiter, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	allowed, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, allowed)

	// Allow alone never consumes budget
	for range 5 {
		allowed, err = l.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	require.NoError(t, l.Hit(ctx, "a"))
	allowed, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, l.Hit(ctx, "a"))
	allowed, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, allowed, "limit of two reached")

	allowed, err = l.Allow(ctx, "b")
	require.NoError(t, err)
	assert.True(t, allowed, "keys are independent")

	advance(25 * time.Hour)

	allowed, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, allowed, "window expired")
}

func TestMemoryLimiter(t *testing.T) {
	t.Parallel()

	l := NewMemoryLimiter(Rate{Limit: 2, Window: 24 * time.Hour})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	exerciseLimiter(t, l, func(d time.Duration) { now = now.Add(d) })
}

func TestMemoryLimiterRefillsGradually(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := NewMemoryLimiter(Rate{Limit: 2, Window: 24 * time.Hour})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.NoError(t, l.Hit(ctx, "a"))
	require.NoError(t, l.Hit(ctx, "a"))
	allowed, err := l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, allowed)

	now = now.Add(11 * time.Hour)
	allowed, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, allowed, "no token before window/limit elapsed")

	now = now.Add(2 * time.Hour)
	allowed, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.True(t, allowed, "one token back after window/limit")

	require.NoError(t, l.Hit(ctx, "a"))
	allowed, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestMemoryLimiterPrunesIdleKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := NewMemoryLimiter(Rate{Limit: 1, Window: time.Minute})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := range 1025 {
		require.NoError(t, l.Hit(ctx, ClientID(strconv.Itoa(i))))
	}
	now = now.Add(2 * time.Minute)
	require.NoError(t, l.Hit(ctx, "fresh"))

	assert.Len(t, l.limiters, 1)
}

func TestRedisLimiter(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, Rate{Limit: 2, Window: 24 * time.Hour})
	require.NoError(t, l.Ping(context.Background()))

	exerciseLimiter(t, l, mr.FastForward)

	require.NoError(t, l.Hit(context.Background(), "c"))
	assert.Equal(t, 24*time.Hour, mr.TTL(keyPrefix+"c"))
}

func TestRedisLimiterFromURL(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	l, err := NewRedisLimiterFromURL("redis://"+mr.Addr()+"/0", Rate{Limit: 1, Window: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	ctx := context.Background()
	require.NoError(t, l.Hit(ctx, "k"))
	allowed, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, allowed)

	_, err = NewRedisLimiterFromURL("://nope", Rate{Limit: 1, Window: time.Minute})
	assert.Error(t, err)
}

func TestRedisLimiterReportsBackendErrors(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, Rate{Limit: 2, Window: time.Hour})
	mr.Close()

	_, err := l.Allow(context.Background(), "a")
	assert.Error(t, err)
	assert.Error(t, l.Hit(context.Background(), "a"))
}
