package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/odiadev/tts-gateway/internal/models"
	"github.com/odiadev/tts-gateway/internal/repository"
)

type VoiceHandler struct {
	repo *repository.VoiceRepository
}

func NewVoiceHandler(repo *repository.VoiceRepository) *VoiceHandler {
	return &VoiceHandler{repo: repo}
}

// Lists active voices, optionally filtered by language or gender
func (h *VoiceHandler) List(c *gin.Context) {
	language := c.Query("language")
	gender := c.Query("gender")

	voices, err := h.repo.ListActive(c.Request.Context(), language, gender)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list voices"})
		return
	}

	c.JSON(http.StatusOK, voices)
}

func (h *VoiceHandler) Create(c *gin.Context) {
	var req struct {
		FriendlyName    string `json:"friendly_name" binding:"required"`
		ProviderVoiceID string `json:"provider_voice_id" binding:"required"`
		Language        string `json:"language" binding:"required"`
		Gender          string `json:"gender" binding:"required,oneof=male female neutral"`
		Description     string `json:"description"`
		IsCloned        bool   `json:"is_cloned"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	existing, err := h.repo.FindByName(ctx, req.FriendlyName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if existing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Voice name already exists"})
		return
	}

	voice := &models.Voice{
		FriendlyName:    req.FriendlyName,
		ProviderVoiceID: req.ProviderVoiceID,
		Language:        req.Language,
		Gender:          req.Gender,
		Description:     req.Description,
		IsCloned:        req.IsCloned,
		IsActive:        true,
	}

	if err := h.repo.Create(ctx, voice); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, voice)
}
