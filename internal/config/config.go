package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Upstream voice-agent platform (live events + full-state polls)
	AgentAPIBaseURL     string
	AgentWSBaseURL      string
	AgentAPIKey         string
	PollInterval        time.Duration
	ReconnectDelay      time.Duration
	ConnectTimeout      time.Duration
	ReadStallTimeout    time.Duration
	TranscriptRetention time.Duration

	// Dashboard API surface
	AdminJWTSecret     string
	CORSAllowedOrigins []string

	// SendGrid (call summary emails)
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AgentAPIBaseURL:     getEnv("AGENT_API_BASE_URL", "http://localhost:8000/api/v1"),
		AgentWSBaseURL:      getEnv("AGENT_WS_BASE_URL", "ws://localhost:8000/api/v1/ws"),
		AgentAPIKey:         getEnv("AGENT_API_KEY", ""),
		PollInterval:        getEnvAsDuration("POLL_INTERVAL", 2*time.Second),
		ReconnectDelay:      getEnvAsDuration("RECONNECT_DELAY", 5*time.Second),
		ConnectTimeout:      getEnvAsDuration("CONNECT_TIMEOUT", 10*time.Second),
		ReadStallTimeout:    getEnvAsDuration("READ_STALL_TIMEOUT", 45*time.Second),
		TranscriptRetention: getEnvAsDuration("TRANSCRIPT_RETENTION", 24*time.Hour),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Zaltech CallOps"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
