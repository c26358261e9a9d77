package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T) Limiter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Limiter{Client: client, Prefix: "rl:"}
}

func TestAllowWithinLimit(t *testing.T) {
	l := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, _, err := l.Allow(ctx, "quotes:1.2.3.4", time.Minute, 3)
		require.NoError(t, err)
		require.True(t, allowed, "hit %d should be allowed", i+1)
		require.Equal(t, 3-(i+1), remaining)
	}
}

func TestAllowBlocksOverLimit(t *testing.T) {
	l := newLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, _, err := l.Allow(ctx, "redeem:1.2.3.4", time.Minute, 2)
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, remaining, _, err := l.Allow(ctx, "redeem:1.2.3.4", time.Minute, 2)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)
}

func TestAllowIsolatesKeys(t *testing.T) {
	l := newLimiter(t)
	ctx := context.Background()

	allowed, _, _, err := l.Allow(ctx, "redeem:1.1.1.1", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, _, err = l.Allow(ctx, "redeem:2.2.2.2", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed, "other caller must get a fresh bucket")
}

func TestAllowDisabledWithoutClient(t *testing.T) {
	l := Limiter{}
	allowed, _, _, err := l.Allow(context.Background(), "any", time.Minute, 5)
	require.NoError(t, err)
	require.True(t, allowed)
}
