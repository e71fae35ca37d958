package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/odiadev/tts-gateway/internal/circuitbreaker"
	"github.com/odiadev/tts-gateway/internal/models"
	"github.com/odiadev/tts-gateway/internal/repository"
)

// Operational endpoints: breaker state and usage analytics
type SystemHandler struct {
	breaker *circuitbreaker.CircuitBreaker
	usage   *repository.UsageRepository
}

func NewSystemHandler(breaker *circuitbreaker.CircuitBreaker, usage *repository.UsageRepository) *SystemHandler {
	return &SystemHandler{
		breaker: breaker,
		usage:   usage,
	}
}

func (h *SystemHandler) BreakerStatus(c *gin.Context) {
	metrics := h.breaker.Metrics()

	c.JSON(http.StatusOK, gin.H{
		"state":             metrics.State.String(),
		"failure_count":     metrics.FailureCount,
		"last_failure_time": metrics.LastFailureTime,
		"last_state_change": metrics.LastStateChange,
	})
}

func (h *SystemHandler) BreakerReset(c *gin.Context) {
	h.breaker.Reset()

	c.JSON(http.StatusOK, gin.H{"message": "Circuit breaker reset successfully"})
}

// Usage statistics for the trailing interval (default 24h)
func (h *SystemHandler) UsageStats(c *gin.Context) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	if v := c.Query("from"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			from = parsed
		}
	}
	if v := c.Query("to"); v != "" {
		if parsed, err := time.Parse(time.RFC3339, v); err == nil {
			to = parsed
		}
	}

	ctx := c.Request.Context()

	successes, err := h.usage.CountByStatus(ctx, models.UsageStatusSuccess, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	failures, _ := h.usage.CountByStatus(ctx, models.UsageStatusError, from, to)
	quotaRejections, _ := h.usage.CountByStatus(ctx, models.UsageStatusQuotaExceeded, from, to)
	rateLimited, _ := h.usage.CountByStatus(ctx, models.UsageStatusRateLimited, from, to)
	totalSeconds, _ := h.usage.TotalAudioSeconds(ctx, from, to)
	topVoices, _ := h.usage.TopVoices(ctx, from, to, 10)

	c.JSON(http.StatusOK, gin.H{
		"from":                from,
		"to":                  to,
		"successful_requests": successes,
		"failed_requests":     failures,
		"quota_rejections":    quotaRejections,
		"rate_limited":        rateLimited,
		"total_audio_seconds": totalSeconds,
		"top_voices":          topVoices,
	})
}
