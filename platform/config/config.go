// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler client/worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// MonitorConfig provides settings for the monitoring loop.
type MonitorConfig interface {
	GetMonitorInterval() time.Duration
	GetInitialContactTTL() time.Duration
	GetFollowUpTaskTTL() time.Duration
	GetMaxRedistributionAttempts() int
	GetDailyEscalationThreshold() int
}

// RulesConfig provides settings for the reschedule rule engine.
type RulesConfig interface {
	GetRulesFile() string
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                       string
	HTTPAddr                  string
	DatabaseURL               string
	JWTAccessSecret           string
	CORSAllowAll              bool
	CORSOrigins               []string
	CORSAllowCreds            bool
	AppBaseURL                string
	RedisURL                  string
	RedisTLSInsecure          bool
	AsynqQueueName            string
	AsynqConcurrency          int
	MonitorInterval           time.Duration
	InitialContactTTL         time.Duration
	FollowUpTaskTTL           time.Duration
	MaxRedistributionAttempts int
	DailyEscalationThreshold  int
	RulesFile                 string
	EmailEnabled              bool
	SMTPHost                  string
	SMTPPort                  int
	SMTPUsername              string
	SMTPPassword              string
	EmailFromName             string
	EmailFromAddress          string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// MonitorConfig implementation
func (c *Config) GetMonitorInterval() time.Duration   { return c.MonitorInterval }
func (c *Config) GetInitialContactTTL() time.Duration { return c.InitialContactTTL }
func (c *Config) GetFollowUpTaskTTL() time.Duration   { return c.FollowUpTaskTTL }
func (c *Config) GetMaxRedistributionAttempts() int   { return c.MaxRedistributionAttempts }
func (c *Config) GetDailyEscalationThreshold() int    { return c.DailyEscalationThreshold }

// RulesConfig implementation
func (c *Config) GetRulesFile() string { return c.RulesFile }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// =============================================================================
// Loading
// =============================================================================

// Load reads configuration from the environment, applying defaults where a
// value is optional. A .env file is honored when present (local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                       getEnv("APP_ENV", "development"),
		HTTPAddr:                  getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		JWTAccessSecret:           os.Getenv("JWT_ACCESS_SECRET"),
		CORSAllowAll:              getBoolEnv("CORS_ALLOW_ALL", false),
		CORSOrigins:               getListEnv("CORS_ORIGINS"),
		CORSAllowCreds:            getBoolEnv("CORS_ALLOW_CREDENTIALS", true),
		AppBaseURL:                getEnv("APP_BASE_URL", "http://localhost:3000"),
		RedisURL:                  os.Getenv("REDIS_URL"),
		RedisTLSInsecure:          getBoolEnv("REDIS_TLS_INSECURE", false),
		AsynqQueueName:            getEnv("ASYNQ_QUEUE", "leadrouter"),
		AsynqConcurrency:          getIntEnv("ASYNQ_CONCURRENCY", 10),
		MonitorInterval:           getDurationEnv("MONITOR_INTERVAL", 30*time.Minute),
		InitialContactTTL:         getDurationEnv("INITIAL_CONTACT_TTL", 24*time.Hour),
		FollowUpTaskTTL:           getDurationEnv("FOLLOW_UP_TASK_TTL", 24*time.Hour),
		MaxRedistributionAttempts: getIntEnv("MAX_REDISTRIBUTION_ATTEMPTS", 3),
		DailyEscalationThreshold:  getIntEnv("DAILY_ESCALATION_THRESHOLD", 3),
		RulesFile:                 getEnv("RESCHEDULE_RULES_FILE", "rules.yaml"),
		EmailEnabled:              getBoolEnv("EMAIL_ENABLED", false),
		SMTPHost:                  os.Getenv("SMTP_HOST"),
		SMTPPort:                  getIntEnv("SMTP_PORT", 587),
		SMTPUsername:              os.Getenv("SMTP_USERNAME"),
		SMTPPassword:              os.Getenv("SMTP_PASSWORD"),
		EmailFromName:             getEnv("EMAIL_FROM_NAME", "Lead Router"),
		EmailFromAddress:          getEnv("EMAIL_FROM_ADDRESS", "no-reply@localhost"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is required when EMAIL_ENABLED is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getIntEnv(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
