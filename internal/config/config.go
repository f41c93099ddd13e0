// Package config provides configuration for tailstreamd.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Stream log backend. An empty RedisAddr disables the resumable log;
	// the pipeline then degrades to durable-store polling.
	RedisAddr     string
	RedisPassword string

	// LLM provider
	LLMBaseURL string
	LLMAPIKey  string
	LLMTimeout time.Duration

	// Stream log TTLs
	StreamTTL    time.Duration
	CompletedTTL time.Duration
	ErrorTTL     time.Duration

	// Relay
	RelayPollInterval time.Duration

	// Producer
	GenerationTimeout time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:       getEnv("DATABASE_URL", "file:tailstream.db?cache=shared&mode=rwc"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		LLMBaseURL:        getEnv("LLM_BASE_URL", "http://localhost:4000"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMTimeout:        time.Duration(getEnvInt("LLM_TIMEOUT_MS", 300000)) * time.Millisecond,
		StreamTTL:         time.Duration(getEnvInt("STREAM_TTL_MS", 3600000)) * time.Millisecond,
		CompletedTTL:      time.Duration(getEnvInt("COMPLETED_TTL_MS", 900000)) * time.Millisecond,
		ErrorTTL:          time.Duration(getEnvInt("ERROR_TTL_MS", 60000)) * time.Millisecond,
		RelayPollInterval: time.Duration(getEnvInt("RELAY_POLL_MS", 50)) * time.Millisecond,
		GenerationTimeout: time.Duration(getEnvInt("GENERATION_TIMEOUT_MS", 300000)) * time.Millisecond,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
