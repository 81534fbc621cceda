package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/askwhyharsh/caddate/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Limiter admits at most a fixed number of events per key in a sliding window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter keeps one sorted set per key, scored by event time, so every
// server instance shares the same window.
type RedisLimiter struct {
	redis    storage.RedisClient
	prefix   string
	maxCount int
	window   time.Duration
	now      func() time.Time
}

func NewRedisLimiter(redisClient storage.RedisClient, prefix string, maxCount int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		redis:    redisClient,
		prefix:   prefix,
		maxCount: maxCount,
		window:   window,
		now:      time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return l.checkSlidingWindow(ctx, fmt.Sprintf("ratelimit:%s:%s", l.prefix, key))
}

// checkSlidingWindow implements a sliding window rate limiter using sorted sets
func (l *RedisLimiter) checkSlidingWindow(ctx context.Context, key string) (bool, error) {
	now := l.now().UnixMilli()
	windowStart := now - l.window.Milliseconds()

	// Remove old entries outside the window
	if _, err := l.redis.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10)); err != nil {
		return false, errors.Wrap(err, "failed to clean old entries")
	}

	count, err := l.redis.ZCard(ctx, key)
	if err != nil {
		return false, errors.Wrap(err, "failed to count entries")
	}
	if count >= int64(l.maxCount) {
		return false, nil
	}

	if err := l.redis.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now),
		Member: uuid.NewString(),
	}); err != nil {
		return false, errors.Wrap(err, "failed to add entry")
	}

	if err := l.redis.Expire(ctx, key, l.window); err != nil {
		return false, errors.Wrap(err, "failed to set window expiry")
	}
	return true, nil
}
