package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreFixedWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, retry, err := store.Allow(ctx, "ip", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "attempt %d", i+1)
		assert.Zero(t, retry)
	}

	now = now.Add(20 * time.Second)
	allowed, retry, err := store.Allow(ctx, "ip", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 40*time.Second, retry)

	allowed, _, _ = store.Allow(ctx, "other-ip", 3, time.Minute)
	assert.True(t, allowed, "keys are counted separately")

	now = now.Add(41 * time.Second)
	allowed, _, err = store.Allow(ctx, "ip", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "a new window starts after reset")
}

func TestMemoryStoreSweepsOncePerWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		_, _, err := store.Allow(ctx, key, 5, time.Minute)
		require.NoError(t, err)
	}
	assert.Len(t, store.windows, 3)

	now = now.Add(30 * time.Second)
	_, _, _ = store.Allow(ctx, "d", 5, time.Minute)
	assert.Len(t, store.windows, 4, "no sweep before a full window has passed")

	now = now.Add(31 * time.Second)
	_, _, _ = store.Allow(ctx, "e", 5, time.Minute)
	assert.Len(t, store.windows, 2, "expired a, b and c are swept")
	assert.Contains(t, store.windows, "d")
	assert.Contains(t, store.windows, "e")

	now = now.Add(40 * time.Second)
	allowed, _, err := store.Allow(ctx, "d", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "an expired window is reset on access between sweeps")
	assert.Equal(t, 1, store.windows["d"].count)
}

func TestLimiterDisabled(t *testing.T) {
	tests := []struct {
		name    string
		limiter *Limiter
	}{
		{name: "nil limiter", limiter: nil},
		{name: "zero limit", limiter: New(NewMemoryStore(), "login:", 0, time.Minute)},
		{name: "no store", limiter: New(nil, "login:", 5, time.Minute)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 10; i++ {
				allowed, _, err := tt.limiter.Allow(context.Background(), "ip")
				require.NoError(t, err)
				assert.True(t, allowed)
			}
		})
	}
}

func TestLimiterPrefixesKeys(t *testing.T) {
	store := NewMemoryStore()
	limiter := New(store, "login:", 1, time.Minute)

	allowed, _, err := limiter.Allow(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, allowed)

	_, ok := store.windows["login:unknown"]
	assert.True(t, ok)
}

func TestRedisStoreAllow(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	key := "videotube:test:" + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { client.Del(ctx, key) })

	store := NewRedisStore(client)

	for i := 0; i < 2; i++ {
		allowed, retry, err := store.Allow(ctx, key, 2, 10*time.Second)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Zero(t, retry)
	}

	allowed, retry, err := store.Allow(ctx, key, 2, 10*time.Second)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retry, time.Duration(0))
	assert.LessOrEqual(t, retry, 10*time.Second)
}
