// Package ratelimit throttles login attempts per client address with a
// sliding window kept in redis sorted sets.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/clinsafe/medledger/internal/server/config"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:login:"

// Connect opens a redis client from the server configuration and verifies
// the connection with a ping.
func Connect(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := client.Ping(pingCtx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// SlidingWindow counts attempts per key inside a moving time window. Each
// Allow call records the attempt first, so a denied attempt still counts
// toward the window.
type SlidingWindow struct {
	rdb    redis.Cmdable
	limit  int
	window time.Duration
}

// NewSlidingWindow initializes a limiter allowing limit attempts per window.
func NewSlidingWindow(rdb redis.Cmdable, limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{rdb: rdb, limit: limit, window: window}
}

// Allow reports whether the attempt for key is within the limit. The caller
// decides what to do when redis itself is unreachable; Allow only reports
// the error.
func (l *SlidingWindow) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now().UnixNano()
	k := keyPrefix + key

	pipe := l.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", fmt.Sprintf("%d", now-l.window.Nanoseconds()))
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now), Member: now})
	card := pipe.ZCard(ctx, k)
	pipe.Expire(ctx, k, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to execute rate limit commands: %w", err)
	}

	return card.Val() <= int64(l.limit), nil
}
