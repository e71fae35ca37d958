package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig   `json:"server"`
	Database  DatabaseConfig `json:"database"`
	Redis     RedisConfig    `json:"redis"`
	Auth      AuthConfig     `json:"auth"`
	RateLimit RateLimit      `json:"rate_limit"`
	Provider  ProviderConfig `json:"provider"`
	Plans     []PlanConfig   `json:"plans"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

type AuthConfig struct {
	// "scan" compares against every active account in constant time,
	// "indexed" does a direct digest lookup with a fixed delay.
	Mode               string `json:"mode"`
	MaxCredentialAge   int    `json:"max_credential_age_days"`
	RotationGraceHours int    `json:"rotation_grace_hours"`
	JWTSecret          string `json:"-"`
	JWTExpiryHours     int    `json:"jwt_expiry_hours"`
}

type RateLimit struct {
	// "memory" for a single instance, "redis" for fleets
	Store string `json:"store"`
}

type ProviderConfig struct {
	BaseURL          string  `json:"base_url"`
	APIKey           string  `json:"-"`
	GroupID          string  `json:"-"`
	TimeoutSeconds   int     `json:"timeout_seconds"`
	MaxRetries       int     `json:"max_retries"`
	FailureThreshold int     `json:"failure_threshold"`
	CooldownSeconds  int     `json:"cooldown_seconds"`
	MaxTextLength    int     `json:"max_text_length"`
	FallbackSilent   bool    `json:"fallback_silent_audio"`
	DefaultModel     string  `json:"default_model"`
	DefaultSpeed     float64 `json:"default_speed"`
}

func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (p ProviderConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownSeconds) * time.Second
}

type PlanConfig struct {
	Name              string  `json:"name"`
	QuotaSeconds      float64 `json:"quota_seconds"`
	RequestsPerMinute int     `json:"requests_per_minute"`
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	file, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(cfg)

	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("PROVIDER_API_KEY is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Environment: "development",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		Auth: AuthConfig{
			Mode:               "scan",
			MaxCredentialAge:   365,
			RotationGraceHours: 24,
			JWTExpiryHours:     24,
		},
		RateLimit: RateLimit{
			Store: "memory",
		},
		Provider: ProviderConfig{
			BaseURL:          "https://api.minimaxi.chat",
			TimeoutSeconds:   10,
			MaxRetries:       3,
			FailureThreshold: 5,
			CooldownSeconds:  60,
			MaxTextLength:    5000,
			FallbackSilent:   true,
			DefaultModel:     "speech-02-turbo",
			DefaultSpeed:     1.0,
		},
		Plans: []PlanConfig{
			{Name: "free", QuotaSeconds: 600, RequestsPerMinute: 10},
			{Name: "basic", QuotaSeconds: 3600, RequestsPerMinute: 30},
			{Name: "pro", QuotaSeconds: 14400, RequestsPerMinute: 60},
			{Name: "enterprise", QuotaSeconds: 36000, RequestsPerMinute: 120},
		},
	}
}

// Secrets and deployment-specific values come from the environment, never
// from the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Server.Environment = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		cfg.Redis.Port = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("PROVIDER_GROUP_ID"); v != "" {
		cfg.Provider.GroupID = v
	}
	if v := os.Getenv("PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("MAX_TEXT_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Provider.MaxTextLength = n
		}
	}
	if v := os.Getenv("FALLBACK_TO_SILENT_AUDIO"); v != "" {
		cfg.Provider.FallbackSilent = v == "true" || v == "1"
	}
}

// Returns the plan entry for the given tier, falling back to the first
// (smallest) plan for unknown tiers.
func (c *Config) PlanFor(name string) PlanConfig {
	for _, plan := range c.Plans {
		if plan.Name == name {
			return plan
		}
	}
	return c.Plans[0]
}
