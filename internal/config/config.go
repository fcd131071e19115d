package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/quillnote/tasks-api/internal/storage"
)

// Config holds application configuration
type Config struct {
	DatabaseURL     string
	ServerPort      string
	FrontendURL     string
	RedisURL        string
	RateLimit       string
	RequestTimeout  int
	EnableHSTS      bool
	ServerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string
}

// Load loads configuration from environment variables. DATABASE_URL may
// be a postgres URL or a SQLite file path; when unset, a SQLite database
// under the user config dir is used.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:3000"),
		RedisURL:        getEnv("REDIS_URL", ""),
		RateLimit:       getEnv("RATE_LIMIT", "20-S"),
		RequestTimeout:  getEnvInt("REQUEST_TIMEOUT_SECONDS", 30),
		EnableHSTS:      getEnvBool("ENABLE_HSTS", false),
		ServerDebugMode: getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if cfg.DatabaseURL == "" {
		path, err := storage.DefaultSQLitePath()
		if err != nil {
			return nil, fmt.Errorf("DATABASE_URL is not set and no default path is available: %w", err)
		}
		cfg.DatabaseURL = path
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
