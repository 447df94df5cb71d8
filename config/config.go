package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable for the gateway, loaded once at startup.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration

	// Redis (response cache backing store; sessions and the token
	// blacklist are kept in memory)
	RedisURL string

	// CORS / trusted hosts
	CORSOrigins  []string
	AllowedHosts []string

	// External collaborators
	LLMBackendURL         string
	AnalyticsServiceURL   string
	AnalyticsClientID     string
	AnalyticsClientSecret string
	AnalyticsTokenURL     string
	WorkflowServiceURL    string
	WorkflowSigningKey    string

	// Auth
	APIKeyHeader     string
	SecretKey        string
	JWTAlgo          string
	TokenTTL         time.Duration
	RefreshTTL       time.Duration
	PasswordMinLen   int
	MaxLoginAttempts int
	LockoutMinutes   int

	// Rate limiting
	RateLimitEnabled bool
	RateLimitRPM     int
	RateLimitRPH     int
	RateLimitBurst   int

	// Timeouts
	DefaultTimeout   time.Duration
	ProviderTimeouts map[string]time.Duration

	// Body limits
	MaxBodyBytes int64

	// Response cache (C2)
	CacheTTLDefault      time.Duration
	CompressionThreshold int

	// Connection fabric (C6)
	MaxConnections int
	HeartbeatSecs  int
	IdleMinutes    int
	BatchWindowMS  int
	BatchMax       int

	// Audit (C4)
	AuditRetentionDays int
	AuditBatchSize     int

	// Logging
	LogLevel string

	// Seed admin account (C3) — the gateway has no user directory of its
	// own; a single seed account is enough to bootstrap session issuance.
	AdminUsername     string
	AdminPasswordHash string
}

// Load reads configuration from environment variables and an optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	gracefulSec := getEnvInt("GATEWAY_GRACEFUL_TIMEOUT_SEC", 15)
	defaultTimeoutSec := getEnvInt("GATEWAY_DEFAULT_TIMEOUT_SEC", 30)

	cfg := &Config{
		Addr:            getEnv("PORT_ADDR", getEnv("GATEWAY_ADDR", ":8080")),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(gracefulSec) * time.Second,
		RedisURL:        getEnv("REDIS_URL", "redis://redis:6379"),

		CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
		AllowedHosts: getEnvList("ALLOWED_HOSTS", []string{"*"}),

		LLMBackendURL:         getEnv("LLM_BACKEND_URL", "http://localhost:9000"),
		AnalyticsServiceURL:   getEnv("ANALYTICS_SERVICE_URL", "http://localhost:9100"),
		AnalyticsClientID:     getEnv("ANALYTICS_CLIENT_ID", ""),
		AnalyticsClientSecret: getEnv("ANALYTICS_CLIENT_SECRET", ""),
		AnalyticsTokenURL:     getEnv("ANALYTICS_TOKEN_URL", "http://localhost:9100/oauth/token"),
		WorkflowServiceURL:    getEnv("WORKFLOW_SERVICE_URL", "http://localhost:9200"),
		WorkflowSigningKey:    getEnv("WORKFLOW_SIGNING_KEY", "change-me"),

		APIKeyHeader:     getEnv("API_KEY_HEADER", "Authorization"),
		SecretKey:        getEnv("SECRET_KEY", "dev-secret-change-me"),
		JWTAlgo:          getEnv("JWT_ALGO", "HS256"),
		TokenTTL:         time.Duration(getEnvInt("TOKEN_TTL_HOURS", 24)) * time.Hour,
		RefreshTTL:       time.Duration(getEnvInt("REFRESH_TTL_DAYS", 7)) * 24 * time.Hour,
		PasswordMinLen:   getEnvInt("PASSWORD_MIN_LEN", 12),
		MaxLoginAttempts: getEnvInt("MAX_LOGIN_ATTEMPTS", 5),
		LockoutMinutes:   getEnvInt("LOCKOUT_MINUTES", 30),

		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:     getEnvInt("RATE_LIMIT_RPM", 100),
		RateLimitRPH:     getEnvInt("RATE_LIMIT_RPH", 1000),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 10),

		DefaultTimeout: time.Duration(defaultTimeoutSec) * time.Second,
		MaxBodyBytes:   int64(getEnvInt("GATEWAY_MAX_BODY_BYTES", 10*1024*1024)),

		CacheTTLDefault:      time.Duration(getEnvInt("CACHE_TTL_DEFAULT", 3600)) * time.Second,
		CompressionThreshold: getEnvInt("COMPRESSION_THRESHOLD", 1024),

		MaxConnections: getEnvInt("MAX_CONNECTIONS", 1000),
		HeartbeatSecs:  getEnvInt("HEARTBEAT_SECS", 30),
		IdleMinutes:    getEnvInt("IDLE_MINUTES", 30),
		BatchWindowMS:  getEnvInt("BATCH_WINDOW_MS", 100),
		BatchMax:       getEnvInt("BATCH_MAX", 50),

		AuditRetentionDays: getEnvInt("AUDIT_RETENTION_DAYS", 2555),
		AuditBatchSize:     getEnvInt("AUDIT_BATCH", 100),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		AdminUsername:     getEnv("GATEWAY_ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("GATEWAY_ADMIN_PASSWORD_HASH", ""),

		ProviderTimeouts: map[string]time.Duration{
			"nano": time.Duration(getEnvInt("VARIANT_TIMEOUT_NANO_SEC", 30)) * time.Second,
			"mini": time.Duration(getEnvInt("VARIANT_TIMEOUT_MINI_SEC", 30)) * time.Second,
			"chat": time.Duration(getEnvInt("VARIANT_TIMEOUT_CHAT_SEC", 30)) * time.Second,
			"full": time.Duration(getEnvInt("VARIANT_TIMEOUT_FULL_SEC", 30)) * time.Second,
		},
	}
	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// VariantTimeout returns the configured call timeout for a model variant.
func (c *Config) VariantTimeout(variant string) time.Duration {
	if t, ok := c.ProviderTimeouts[variant]; ok {
		return t
	}
	return c.DefaultTimeout
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
