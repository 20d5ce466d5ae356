package config

import (
	"os"
	"time"
)

const (
	rateLimitBackendEnv         = "RATE_LIMIT_BACKEND"
	rateLimitConfigFileEnv      = "RATE_LIMIT_CONFIG_FILE"
	rateLimitJanitorIntervalEnv = "RATE_LIMIT_JANITOR_INTERVAL"

	rateLimitBulkMaxEnv    = "RATE_LIMIT_BULK_MAX"
	rateLimitBulkWindowEnv = "RATE_LIMIT_BULK_WINDOW"
	rateLimitSyncMaxEnv    = "RATE_LIMIT_SYNC_MAX"
	rateLimitSyncWindowEnv = "RATE_LIMIT_SYNC_WINDOW"
	rateLimitAuthMaxEnv    = "RATE_LIMIT_AUTH_MAX"
	rateLimitAuthWindowEnv = "RATE_LIMIT_AUTH_WINDOW"

	defaultRateLimitBackend         = RateLimitBackendMemory
	defaultRateLimitJanitorInterval = time.Minute

	defaultBulkMax    = 5
	defaultBulkWindow = time.Minute
	defaultSyncMax    = 20
	defaultSyncWindow = time.Minute
	defaultAuthMax    = 10
	defaultAuthWindow = 15 * time.Minute
)

type RateLimitBackend string

const (
	RateLimitBackendMemory RateLimitBackend = "memory"
	RateLimitBackendRedis  RateLimitBackend = "redis"
)

type LimiterPolicy struct {
	Name        string
	MaxRequests int
	Window      time.Duration
}

type RateLimitConfig struct {
	Backend         RateLimitBackend
	JanitorInterval time.Duration
	// PolicyFile optionally overrides the env policies by limiter name.
	PolicyFile string
	Policies   []LimiterPolicy
}

func LoadRateLimitConfig() (*RateLimitConfig, error) {
	backend := RateLimitBackend(getEnvOrDefault(rateLimitBackendEnv, string(defaultRateLimitBackend)))
	if backend != RateLimitBackendMemory && backend != RateLimitBackendRedis {
		return nil, ErrUnknownRateLimitBackend
	}

	janitor, err := durationFromEnv(rateLimitJanitorIntervalEnv, defaultRateLimitJanitorInterval)
	if err != nil {
		return nil, err
	}
	if janitor == 0 {
		janitor = defaultRateLimitJanitorInterval
	}

	specs := []struct {
		name      string
		maxEnv    string
		windowEnv string
		max       int
		window    time.Duration
	}{
		{"bulk", rateLimitBulkMaxEnv, rateLimitBulkWindowEnv, defaultBulkMax, defaultBulkWindow},
		{"sync", rateLimitSyncMaxEnv, rateLimitSyncWindowEnv, defaultSyncMax, defaultSyncWindow},
		{"auth", rateLimitAuthMaxEnv, rateLimitAuthWindowEnv, defaultAuthMax, defaultAuthWindow},
	}

	policies := make([]LimiterPolicy, 0, len(specs))
	for _, s := range specs {
		maxRequests, err := intFromEnv(s.maxEnv, s.max, 1)
		if err != nil {
			return nil, err
		}
		window, err := durationFromEnv(s.windowEnv, s.window)
		if err != nil {
			return nil, err
		}
		if window == 0 {
			window = s.window
		}
		policies = append(policies, LimiterPolicy{Name: s.name, MaxRequests: maxRequests, Window: window})
	}

	return &RateLimitConfig{
		Backend:         backend,
		JanitorInterval: janitor,
		PolicyFile:      os.Getenv(rateLimitConfigFileEnv),
		Policies:        policies,
	}, nil
}
