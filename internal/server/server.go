package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/odiadev/tts-gateway/internal/auth"
	"github.com/odiadev/tts-gateway/internal/config"
	"github.com/odiadev/tts-gateway/internal/handler"
	"github.com/odiadev/tts-gateway/internal/middleware"
	"github.com/odiadev/tts-gateway/internal/provider"
	"github.com/odiadev/tts-gateway/internal/quota"
	"github.com/odiadev/tts-gateway/internal/repository"
	"github.com/odiadev/tts-gateway/internal/service"
	"github.com/odiadev/tts-gateway/internal/storage"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	redis      *storage.RedisClient
	postgres   *storage.Postgres
	httpServer *http.Server

	authenticator *auth.Authenticator

	ttsHandler       *handler.TTSHandler
	voiceHandler     *handler.VoiceHandler
	accountHandler   *handler.AccountHandler
	adminAuthHandler *handler.AdminAuthHandler
	systemHandler    *handler.SystemHandler
	adminAuthService *service.AdminAuthService
}

func New(cfg *config.Config, postgres *storage.Postgres, redis *storage.RedisClient) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	accountRepo := repository.NewAccountRepository(postgres)
	usageRepo := repository.NewUsageRepository(postgres)
	voiceRepo := repository.NewVoiceRepository(postgres)
	adminRepo := repository.NewAdminRepository(postgres)

	authenticator := auth.NewAuthenticator(accountRepo, redis, cfg.Auth.Mode, cfg.Auth.MaxCredentialAge)
	ledger := quota.NewLedger(accountRepo)

	gateway, err := provider.NewClient(cfg.Provider)
	if err != nil {
		return nil, err
	}

	accountService := service.NewAccountService(accountRepo, authenticator, cfg)
	adminAuthService := service.NewAdminAuthService(adminRepo, cfg.Auth.JWTSecret, cfg.Auth.JWTExpiryHours)
	synthesisService := service.NewSynthesisService(gateway, voiceRepo, usageRepo, ledger, cfg.Provider)

	s := &Server{
		router:           router,
		config:           cfg,
		redis:            redis,
		postgres:         postgres,
		authenticator:    authenticator,
		ttsHandler:       handler.NewTTSHandler(synthesisService),
		voiceHandler:     handler.NewVoiceHandler(voiceRepo),
		accountHandler:   handler.NewAccountHandler(accountService),
		adminAuthHandler: handler.NewAdminAuthHandler(adminAuthService),
		systemHandler:    handler.NewSystemHandler(gateway.Breaker(), usageRepo),
		adminAuthService: adminAuthService,
	}

	s.setupMiddleware()
	s.setupRoutes(usageRepo)

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
}

func (s *Server) setupRoutes(usageRepo *repository.UsageRepository) {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/v1")
	{
		v1.GET("/voices", s.voiceHandler.List)

		authed := v1.Group("")
		authed.Use(middleware.RequireCredential(s.authenticator))
		authed.Use(middleware.RateLimitByPlan(s.config, s.redis, usageRepo))
		{
			authed.POST("/tts", s.ttsHandler.Synthesize)
			authed.GET("/me", s.ttsHandler.Me)
		}
	}

	admin := s.router.Group("/admin")
	{
		admin.POST("/register", s.adminAuthHandler.Register)
		admin.POST("/login", s.adminAuthHandler.Login)

		protected := admin.Group("")
		protected.Use(middleware.RequireAdmin(s.adminAuthService))
		{
			protected.POST("/accounts", s.accountHandler.Create)
			protected.GET("/accounts", s.accountHandler.List)
			protected.GET("/accounts/:id", s.accountHandler.Get)
			protected.PUT("/accounts/:id/quota", s.accountHandler.UpdateQuota)
			protected.POST("/accounts/:id/rotate", s.accountHandler.Rotate)
			protected.DELETE("/accounts/:id", s.accountHandler.Deactivate)

			protected.POST("/voices", s.voiceHandler.Create)

			protected.GET("/usage", s.systemHandler.UsageStats)
			protected.GET("/breaker", s.systemHandler.BreakerStatus)
			protected.POST("/breaker/reset", s.systemHandler.BreakerReset)
		}
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	redisHealthy := true
	if err := s.redis.Ping(c.Request.Context()); err != nil {
		redisHealthy = false
		log.Printf("Redis health check failed: %v", err)
	}

	dbHealthy := true
	if err := s.postgres.Ping(c.Request.Context()); err != nil {
		dbHealthy = false
		log.Printf("Database health check failed: %v", err)
	}

	status := "healthy"
	statusCode := http.StatusOK

	if !redisHealthy || !dbHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "tts-gateway",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"redis":    redisHealthy,
			"database": dbHealthy,
		},
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.Printf("Starting TTS gateway on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
