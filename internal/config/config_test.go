package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("expected info log level, got %v", cfg.LogLevel)
	}
	if cfg.RateLimit.Backend != RateLimitBackendMemory {
		t.Errorf("expected memory rate limit backend, got %s", cfg.RateLimit.Backend)
	}
	if len(cfg.RateLimit.Policies) != 3 {
		t.Fatalf("expected 3 limiter policies, got %d", len(cfg.RateLimit.Policies))
	}
	bulk := cfg.RateLimit.Policies[0]
	if bulk.Name != "bulk" || bulk.MaxRequests != defaultBulkMax || bulk.Window != defaultBulkWindow {
		t.Errorf("unexpected bulk policy: %+v", bulk)
	}
	if cfg.Orchestrator.Concurrency != defaultConcurrency {
		t.Errorf("expected concurrency %d, got %d", defaultConcurrency, cfg.Orchestrator.Concurrency)
	}
	if cfg.Orchestrator.OperationTimeout != 0 {
		t.Errorf("expected no operation timeout, got %v", cfg.Orchestrator.OperationTimeout)
	}
	if cfg.Store.Driver != StoreDriverRedis {
		t.Errorf("expected redis store, got %s", cfg.Store.Driver)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RATE_LIMIT_BACKEND", "redis")
	t.Setenv("RATE_LIMIT_BULK_MAX", "2")
	t.Setenv("RATE_LIMIT_BULK_WINDOW", "30s")
	t.Setenv("ORCHESTRATOR_CONCURRENCY", "8")
	t.Setenv("ORCHESTRATOR_RETRY_DELAY", "250ms")
	t.Setenv("ORCHESTRATOR_OPERATION_TIMEOUT", "10m")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("STORE_DSN", "file:ops.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.LogLevel)
	}
	if cfg.RateLimit.Backend != RateLimitBackendRedis {
		t.Errorf("expected redis backend, got %s", cfg.RateLimit.Backend)
	}
	if got := cfg.RateLimit.Policies[0]; got.MaxRequests != 2 || got.Window != 30*time.Second {
		t.Errorf("unexpected bulk policy: %+v", got)
	}
	if cfg.Orchestrator.Concurrency != 8 {
		t.Errorf("expected concurrency 8, got %d", cfg.Orchestrator.Concurrency)
	}
	if cfg.Orchestrator.RetryDelay != 250*time.Millisecond {
		t.Errorf("expected retry delay 250ms, got %v", cfg.Orchestrator.RetryDelay)
	}
	if cfg.Orchestrator.OperationTimeout != 10*time.Minute {
		t.Errorf("expected timeout 10m, got %v", cfg.Orchestrator.OperationTimeout)
	}
	if err := cfg.Store.Validate(); err != nil {
		t.Errorf("unexpected store validation error: %v", err)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr error
	}{
		{name: "zero concurrency", key: "ORCHESTRATOR_CONCURRENCY", value: "0", wantErr: ErrInvalidInteger},
		{name: "negative retries", key: "ORCHESTRATOR_RETRIES", value: "-1", wantErr: ErrInvalidInteger},
		{name: "concurrency above max", key: "ORCHESTRATOR_CONCURRENCY", value: "500", wantErr: ErrInvalidInteger},
		{name: "bad retry delay", key: "ORCHESTRATOR_RETRY_DELAY", value: "soon", wantErr: ErrInvalidDuration},
		{name: "bad limiter max", key: "RATE_LIMIT_SYNC_MAX", value: "lots", wantErr: ErrInvalidInteger},
		{name: "unknown backend", key: "RATE_LIMIT_BACKEND", value: "memcached", wantErr: ErrUnknownRateLimitBackend},
		{name: "bad redis db", key: "REDIS_DB", value: "one", wantErr: ErrInvalidRedisDB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateForRun(t *testing.T) {
	base := func() *Config {
		return &Config{
			Redis:        &RedisConfig{Addr: "localhost:6379"},
			RateLimit:    &RateLimitConfig{Backend: RateLimitBackendMemory},
			Orchestrator: &OrchestratorConfig{},
			Store:        &StoreConfig{Driver: StoreDriverRedis},
			Archive:      &ArchiveConfig{},
			Applier:      &ApplierConfig{GitRepoPath: "/srv/repo"},
		}
	}

	if err := ValidateForRun(base()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := base()
	cfg.Store = &StoreConfig{Driver: StoreDriverPostgres}
	if err := ValidateForRun(cfg); !errors.Is(err, ErrStoreDSNMissing) {
		t.Errorf("expected ErrStoreDSNMissing, got %v", err)
	}

	cfg = base()
	cfg.Archive = &ArchiveConfig{Enabled: true}
	if err := ValidateForRun(cfg); !errors.Is(err, ErrArchiveBucketMissing) {
		t.Errorf("expected ErrArchiveBucketMissing, got %v", err)
	}

	cfg = base()
	cfg.Redis = &RedisConfig{}
	if err := ValidateForRun(cfg); !errors.Is(err, ErrRedisAddrMissing) {
		t.Errorf("expected ErrRedisAddrMissing, got %v", err)
	}

	cfg = base()
	cfg.Applier = &ApplierConfig{}
	if err := ValidateForRun(cfg); err == nil {
		t.Error("expected an error when no applier is configured")
	}
}

func TestLoadRedisConfig(t *testing.T) {
	cfg, err := LoadRedisConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != defaultRedisAddr || cfg.PoolSize != 0 || cfg.DialTimeout != defaultRedisDialTimeout {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("REDIS_POOL_SIZE", "32")
	t.Setenv("REDIS_DIAL_TIMEOUT", "2s")

	cfg, err = LoadRedisConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := RedisConfig{Addr: "cache:6380", DB: 2, TLS: true, PoolSize: 32, DialTimeout: 2 * time.Second}
	if *cfg != want {
		t.Errorf("got %+v, want %+v", *cfg, want)
	}

	t.Setenv("REDIS_DB", "-1")
	if _, err := LoadRedisConfig(); !errors.Is(err, ErrInvalidRedisDB) {
		t.Errorf("expected ErrInvalidRedisDB, got %v", err)
	}
}
