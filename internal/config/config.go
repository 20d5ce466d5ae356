package config

import (
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Port         string
	LogLevel     slog.Level
	Redis        *RedisConfig
	RateLimit    *RateLimitConfig
	Orchestrator *OrchestratorConfig
	Store        *StoreConfig
	Archive      *ArchiveConfig
	Applier      *ApplierConfig
}

func Load() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	redisConfig, err := LoadRedisConfig()
	if err != nil {
		return nil, err
	}

	rateLimitConfig, err := LoadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	orchestratorConfig, err := LoadOrchestratorConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:         port,
		LogLevel:     parseLogLevel(os.Getenv("LOG_LEVEL")),
		Redis:        redisConfig,
		RateLimit:    rateLimitConfig,
		Orchestrator: orchestratorConfig,
		Store:        LoadStoreConfig(),
		Archive:      LoadArchiveConfig(),
		Applier:      LoadApplierConfig(),
	}, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
