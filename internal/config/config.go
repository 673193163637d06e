package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kapu/sales-intel-go/internal/constants"
)

type Config struct {
	Gemini   GeminiConfig
	OpenAI   OpenAIConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Server   ServerConfig
	Preview  PreviewConfig
	Logging  LoggingConfig
}

type GeminiConfig struct {
	APIKey         string
	Model          string
	CircuitBreaker bool
}

type OpenAIConfig struct {
	APIKey         string
	Model          string
	EnableFallback bool
}

type RedisConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Password    string
	DB          int
	AutofillTTL time.Duration
}

type PostgresConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type ServerConfig struct {
	Port         int
	Mode         string
	AllowOrigins []string
}

type PreviewConfig struct {
	Enabled     bool
	Timeout     time.Duration
	Concurrency int
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Gemini: GeminiConfig{
			APIKey:         getEnv("GEMINI_API_KEY", ""),
			Model:          getEnv("GEMINI_MODEL", constants.DefaultGeminiModel),
			CircuitBreaker: getEnvBool("AI_CIRCUIT_BREAKER_ENABLED", false),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("OPENAI_MODEL", constants.DefaultOpenAIModel),
			EnableFallback: getEnvBool("OPENAI_ENABLE_FALLBACK", false),
		},
		Redis: RedisConfig{
			Enabled:     getEnvBool("REDIS_ENABLED", false),
			Host:        getEnv("REDIS_HOST", "localhost"),
			Port:        getEnvInt("REDIS_PORT", 6379),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvInt("REDIS_DB", 0),
			AutofillTTL: getEnvDuration("AUTOFILL_CACHE_TTL_MINUTES", constants.CacheTTL.Autofill, time.Minute),
		},
		Postgres: PostgresConfig{
			Enabled:  getEnvBool("POSTGRES_ENABLED", false),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "sales_intel"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "sales_intel"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			Mode:         getEnv("GIN_MODE", "release"),
			AllowOrigins: parseCommaSeparated(getEnv("ALLOW_ORIGINS", "")),
		},
		Preview: PreviewConfig{
			Enabled:     getEnvBool("PREVIEW_ENABLED", true),
			Timeout:     getEnvDuration("PREVIEW_TIMEOUT_SECONDS", constants.PreviewConfig.Timeout, time.Second),
			Concurrency: getEnvInt("PREVIEW_CONCURRENCY", constants.PreviewConfig.Concurrency),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.Gemini.Model == "" {
		return fmt.Errorf("GEMINI_MODEL must not be empty")
	}
	if c.OpenAI.EnableFallback && c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when OPENAI_ENABLE_FALLBACK is set")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port)
	}
	if c.Preview.Concurrency <= 0 {
		return fmt.Errorf("PREVIEW_CONCURRENCY must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration reads an integer count of unit.
func getEnvDuration(key string, defaultValue time.Duration, unit time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil && intVal >= 0 {
			return time.Duration(intVal) * unit
		}
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
