package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/odiadev/tts-gateway/internal/auth"
)

const accountContextKey = "account"

// Resolves the bearer credential on /v1 routes. The 401 body is uniform
// across failure reasons; only an inactive account is distinguishable
// (403), and that is deliberate.
func RequireCredential(authenticator *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		plaintext := bearerToken(c)

		account, err := authenticator.Authenticate(c.Request.Context(), plaintext)
		if err != nil {
			if errors.Is(err, auth.ErrInactiveAccount) {
				c.JSON(http.StatusForbidden, gin.H{
					"error": "Account is deactivated",
				})
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid or missing credential",
				})
			}
			c.Abort()
			return
		}

		c.Set(accountContextKey, account)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		// Fallback header kept for older integrations
		return strings.TrimSpace(c.GetHeader("X-API-Key"))
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
