package config

import (
	"errors"
	"fmt"
)

func ValidateForRun(cfg *Config) error {
	var errs []error

	if cfg.Store.Driver == StoreDriverRedis || cfg.RateLimit.Backend == RateLimitBackendRedis {
		if err := cfg.Redis.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := cfg.Store.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.Archive.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Applier.GitRepoPath == "" && cfg.Applier.SyncWebhookURL == "" {
		errs = append(errs, errors.New("at least one of GIT_REPO_PATH or APP_SYNC_WEBHOOK_URL is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(errs...))
	}
	return nil
}
