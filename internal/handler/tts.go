package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/odiadev/tts-gateway/internal/circuitbreaker"
	"github.com/odiadev/tts-gateway/internal/middleware"
	"github.com/odiadev/tts-gateway/internal/provider"
	"github.com/odiadev/tts-gateway/internal/quota"
	"github.com/odiadev/tts-gateway/internal/service"
)

type TTSHandler struct {
	service *service.SynthesisService
}

func NewTTSHandler(svc *service.SynthesisService) *TTSHandler {
	return &TTSHandler{service: svc}
}

func (h *TTSHandler) Synthesize(c *gin.Context) {
	account := middleware.AccountFromContext(c)
	if account == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing credential"})
		return
	}

	var input service.SynthesisInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	output, err := h.service.Synthesize(c.Request.Context(), account, input)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, output)
}

// Maps service and provider failures to the gateway's own vocabulary.
// Provider identifiers and codes never reach the caller.
func (h *TTSHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyText), errors.Is(err, service.ErrTextTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, service.ErrVoiceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Voice not found. Use GET /v1/voices to list available voices"})

	case errors.Is(err, quota.ErrInsufficientQuota):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Quota exceeded. Upgrade your plan or wait for quota reset"})

	case errors.Is(err, quota.ErrAccountInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": "Account is deactivated"})

	case errors.Is(err, circuitbreaker.ErrOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Speech synthesis is temporarily unavailable"})

	case provider.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	default:
		var perr *provider.Error
		if errors.As(err, &perr) {
			switch perr.Kind {
			case provider.KindAuthFailure:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Service configuration error. Contact the administrator"})
			case provider.KindBadParameters:
				c.JSON(http.StatusBadRequest, gin.H{"error": "Synthesis parameters were rejected"})
			case provider.KindInsufficientBalance, provider.KindRateLimited, provider.KindTransient:
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Speech synthesis is temporarily unavailable"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Speech synthesis failed"})
			}
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": "Speech synthesis failed"})
	}
}

// Returns the authenticated caller's own account
func (h *TTSHandler) Me(c *gin.Context) {
	account := middleware.AccountFromContext(c)
	if account == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing credential"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                account.ID,
		"name":              account.Name,
		"email":             account.Email,
		"plan":              account.Plan,
		"quota_seconds":     account.QuotaSeconds,
		"used_seconds":      account.UsedSeconds,
		"remaining_seconds": account.RemainingSeconds(),
		"quota_used_pct":    account.QuotaPercentageUsed(),
		"is_active":         account.IsActive,
		"created_at":        account.CreatedAt,
	})
}
