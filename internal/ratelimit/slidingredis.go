package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter is a sliding-window rate limiter over Redis sorted sets. Each hit
// is a set member scored by its timestamp; the window is trimmed on every
// check, so the count is exact rather than bucketed.
type Limiter struct {
	Client *redis.Client
	Prefix string
}

// Allow records a hit for key and reports whether it stays within max hits
// per window, along with the hits left and when the window resets. A nil
// client or non-positive limit disables limiting rather than failing
// requests.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}

	now := time.Now()
	reset = now.Add(window)
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)
	bucket := l.Prefix + key

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, bucket, "-inf", cutoff)
	pipe.ZAdd(ctx, bucket, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	count := pipe.ZCard(ctx, bucket)
	pipe.Expire(ctx, bucket, window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, reset, err
	}

	hits := int(count.Val())
	remaining = max - hits
	if remaining < 0 {
		remaining = 0
	}
	return hits <= max, remaining, reset, nil
}
