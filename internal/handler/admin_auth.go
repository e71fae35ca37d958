package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/odiadev/tts-gateway/internal/service"
)

type AdminAuthHandler struct {
	service *service.AdminAuthService
}

func NewAdminAuthHandler(svc *service.AdminAuthService) *AdminAuthHandler {
	return &AdminAuthHandler{service: svc}
}

// Bootstrap-only: open while no operator exists, closed afterwards
func (h *AdminAuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=12"`
		Name     string `json:"name"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	hasAdmins, err := h.service.HasAdmins(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if hasAdmins {
		c.JSON(http.StatusForbidden, gin.H{"error": "Registration is closed"})
		return
	}

	if err := h.service.Register(ctx, req.Email, req.Password, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Admin user created"})
}

func (h *AdminAuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
