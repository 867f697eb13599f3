// Package config loads the server configuration from environment variables.
//
// Every setting is optional. A missing or unparseable value falls back to its
// default, so the server always starts with a usable configuration.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration. It is read once at startup
// and treated as immutable afterwards.
type Config struct {
	// Server
	Port            int
	ShutdownTimeout time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // text or json

	// Rate limit, requests per minute per client IP. 0 disables it.
	RateLimitPerMinute int
}

// Defaults.
const (
	DefaultPort               = 8080
	DefaultDBPath             = "data/users.db"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
	DefaultRateLimitPerMinute = 600
	DefaultShutdownTimeout    = 30 * time.Second
)

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		Port:               getEnvInt("PORT", DefaultPort),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
		DBPath:             getEnvString("DB_PATH", DefaultDBPath),
		LogLevel:           strings.ToLower(getEnvString("LOG_LEVEL", DefaultLogLevel)),
		LogFormat:          strings.ToLower(getEnvString("LOG_FORMAT", DefaultLogFormat)),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", DefaultRateLimitPerMinute),
	}
}

func getEnvString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
