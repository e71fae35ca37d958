package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/odiadev/tts-gateway/internal/config"
	"github.com/odiadev/tts-gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func rateLimitTestConfig() *config.Config {
	return &config.Config{
		RateLimit: config.RateLimit{Store: "memory"},
		Plans: []config.PlanConfig{
			{Name: "free", QuotaSeconds: 600, RequestsPerMinute: 2},
			{Name: "pro", QuotaSeconds: 14400, RequestsPerMinute: 60},
		},
	}
}

func rateLimitTestRouter(cfg *config.Config, account *models.Account) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if account != nil {
			c.Set(accountContextKey, account)
		}
		c.Next()
	})
	router.Use(RateLimitByPlan(cfg, nil, nil))
	router.GET("/probe", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestRateLimitAllowsUpToPlanLimit(t *testing.T) {
	account := &models.Account{ID: uuid.New(), Plan: "free", IsActive: true}
	router := rateLimitTestRouter(rateLimitTestConfig(), account)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, int(time.Minute.Seconds()))
}

func TestRateLimitStateSurvivesAcrossRequests(t *testing.T) {
	account := &models.Account{ID: uuid.New(), Plan: "free", IsActive: true}
	router := rateLimitTestRouter(rateLimitTestConfig(), account)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitAccountsAreIndependent(t *testing.T) {
	cfg := rateLimitTestConfig()

	first := &models.Account{ID: uuid.New(), Plan: "free", IsActive: true}
	second := &models.Account{ID: uuid.New(), Plan: "free", IsActive: true}

	router := gin.New()
	current := first
	router.Use(func(c *gin.Context) {
		c.Set(accountContextKey, current)
		c.Next()
	})
	router.Use(RateLimitByPlan(cfg, nil, nil))
	router.GET("/probe", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
		if i < 2 {
			require.Equal(t, http.StatusOK, w.Code)
		} else {
			require.Equal(t, http.StatusTooManyRequests, w.Code)
		}
	}

	current = second
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitUnknownPlanFallsBack(t *testing.T) {
	account := &models.Account{ID: uuid.New(), Plan: "platinum", IsActive: true}
	router := rateLimitTestRouter(rateLimitTestConfig(), account)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitSkipsUnauthenticated(t *testing.T) {
	router := rateLimitTestRouter(rateLimitTestConfig(), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}
