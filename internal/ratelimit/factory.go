package ratelimit

import (
	"time"

	"github.com/odiadev/tts-gateway/internal/storage"
)

// Builds a sliding-window limiter on the configured store. "memory" keeps
// the window in process (single instance); "redis" shares it across a
// fleet.
func NewLimiter(store string, redis *storage.RedisClient, limit int, window time.Duration) Limiter {
	switch store {
	case "redis":
		if redis != nil {
			return NewRedisSlidingWindow(redis, limit, window)
		}
		return NewMemorySlidingWindow(limit, window)
	default:
		return NewMemorySlidingWindow(limit, window)
	}
}
