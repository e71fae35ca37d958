package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/odiadev/tts-gateway/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Sliding window backed by a redis sorted set, for multi-instance
// deployments where every instance must see the same window.
type RedisSlidingWindow struct {
	redis  *storage.RedisClient
	limit  int
	window time.Duration
}

func NewRedisSlidingWindow(redis *storage.RedisClient, limit int, window time.Duration) *RedisSlidingWindow {
	return &RedisSlidingWindow{
		redis:  redis,
		limit:  limit,
		window: window,
	}
}

func (s *RedisSlidingWindow) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := s.redisKey(key)
	now := time.Now()
	windowStart := now.Add(-s.window)

	// Sorted set with timestamps as scores
	pipe := s.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, redisKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if countCmd.Val() >= int64(s.limit) {
		return false, nil
	}

	if err := s.redis.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	}); err != nil {
		return false, err
	}
	s.redis.Expire(ctx, redisKey, s.window)

	return true, nil
}

func (s *RedisSlidingWindow) Remaining(ctx context.Context, key string) (int, error) {
	now := time.Now()
	windowStart := now.Add(-s.window)

	count, err := s.redis.ZCount(ctx, s.redisKey(key),
		fmt.Sprintf("%d", windowStart.UnixNano()),
		fmt.Sprintf("%d", now.UnixNano()))
	if err != nil {
		return 0, err
	}

	remaining := s.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (s *RedisSlidingWindow) Limit() int {
	return s.limit
}

func (s *RedisSlidingWindow) Window() time.Duration {
	return s.window
}

func (s *RedisSlidingWindow) Reset(ctx context.Context, key string) (time.Time, error) {
	oldest, err := s.redis.ZRange(ctx, s.redisKey(key), 0, 0)
	if err != nil || len(oldest) == 0 {
		return time.Now(), nil
	}

	var oldestNano int64
	fmt.Sscanf(oldest[0], "%d", &oldestNano)

	return time.Unix(0, oldestNano).Add(s.window), nil
}

func (s *RedisSlidingWindow) redisKey(key string) string {
	return "ratelimit:sliding:" + key
}
