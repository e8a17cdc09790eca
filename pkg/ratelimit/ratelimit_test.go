package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroguard/agroguard/pkg/config"
)

func TestLocalPerClientBuckets(t *testing.T) {
	l, err := NewLocal(0.001, 2, 10)
	require.NoError(t, err)
	ctx := context.Background()

	for i := range 2 {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst", i)
	}
	ok, _ := l.Allow(ctx, "10.0.0.1")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "10.0.0.2")
	assert.True(t, ok, "other clients have their own bucket")
}

func TestLocalForgetsLeastRecentClients(t *testing.T) {
	l, err := NewLocal(0.001, 1, 1)
	require.NoError(t, err)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "a")
	require.True(t, ok)
	ok, _ = l.Allow(ctx, "b")
	require.True(t, ok)

	// "a" was evicted, so it starts with a fresh bucket.
	ok, _ = l.Allow(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 1, l.clients.Len())
}

func newRedis(t *testing.T, limit int) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis("redis://"+mr.Addr(), limit, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedisFixedWindow(t *testing.T) {
	r, mr := newRedis(t, 2)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	r.now = func() time.Time { return now }

	for range 2 {
		ok, err := r.Allow(ctx, "farmer-1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := r.Allow(ctx, "farmer-1")
	require.NoError(t, err)
	assert.False(t, ok)

	key := r.key("farmer-1")
	assert.Equal(t, time.Minute, mr.TTL(key))
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	ok, _ = r.Allow(ctx, "farmer-2")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = r.Allow(ctx, "farmer-1")
	assert.True(t, ok, "a new window starts a new count")
}

func TestRedisUnavailable(t *testing.T) {
	r, mr := newRedis(t, 5)
	mr.Close()

	_, err := r.Allow(context.Background(), "farmer-1")
	assert.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	l, err := New(config.RateLimitConfig{Backend: config.RateLimitLocal, RequestsPerSecond: 1, Burst: 1, MaxClients: 4})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, l)

	l, err = New(config.RateLimitConfig{Backend: config.RateLimitRedis, RedisURL: "redis://" + mr.Addr(), Limit: 1, Window: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, l)
	require.NoError(t, l.(*Redis).Ping(context.Background()))
	require.NoError(t, l.Close())

	_, err = New(config.RateLimitConfig{Backend: "memcached"})
	assert.Error(t, err)

	_, err = New(config.RateLimitConfig{Backend: config.RateLimitRedis, RedisURL: "://bad"})
	assert.Error(t, err)
}
