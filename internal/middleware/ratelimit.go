package middleware

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/odiadev/tts-gateway/internal/config"
	"github.com/odiadev/tts-gateway/internal/models"
	"github.com/odiadev/tts-gateway/internal/ratelimit"
	"github.com/odiadev/tts-gateway/internal/service"
	"github.com/odiadev/tts-gateway/internal/storage"
)

// AccountFromContext returns the authenticated account set by
// RequireCredential, or nil.
func AccountFromContext(c *gin.Context) *models.Account {
	value, exists := c.Get(accountContextKey)
	if !exists {
		return nil
	}
	account, ok := value.(*models.Account)
	if !ok {
		return nil
	}
	return account
}

// Per-plan sliding-window rate limiting. One limiter per plan tier, built
// once at startup so in-memory windows persist across requests.
func RateLimitByPlan(cfg *config.Config, redis *storage.RedisClient, usage service.UsageLog) gin.HandlerFunc {
	window := time.Minute

	limiters := make(map[string]ratelimit.Limiter, len(cfg.Plans))
	for _, plan := range cfg.Plans {
		limiters[plan.Name] = ratelimit.NewLimiter(cfg.RateLimit.Store, redis, plan.RequestsPerMinute, window)
	}

	return func(c *gin.Context) {
		account := AccountFromContext(c)
		if account == nil {
			// Unauthenticated routes are not metered here
			c.Next()
			return
		}

		limiter, ok := limiters[account.Plan]
		if !ok {
			limiter = limiters[cfg.Plans[0].Name]
		}

		ctx := c.Request.Context()
		key := account.ID.String()

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Rate limit check failed",
			})
			c.Abort()
			return
		}

		remaining, _ := limiter.Remaining(ctx, key)
		resetTime, _ := limiter.Reset(ctx, key)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limiter.Limit()))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))

		if !allowed {
			retryAfter := int(time.Until(resetTime).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}

			if usage != nil {
				record := &models.UsageRecord{
					AccountID: account.ID,
					Status:    models.UsageStatusRateLimited,
					Timestamp: time.Now().UTC(),
				}
				if err := usage.Create(ctx, record); err != nil {
					log.Printf("failed to record rate-limited attempt for account %s: %v", account.ID, err)
				}
			}

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"plan":        account.Plan,
				"limit":       limiter.Limit(),
				"retry_after": retryAfter,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
