package config

import (
	"os"
	"time"
)

type ApplierConfig struct {
	// GitRepoPath is the local clone branch updates are committed into. Empty disables the git applier.
	GitRepoPath    string
	GitAuthorName  string
	GitAuthorEmail string
	// GitRemote, when set, is pushed to after every branch commit.
	GitRemote string

	// SyncWebhookURL receives app_sync requests. Empty disables the webhook applier.
	SyncWebhookURL string
	SyncTimeout    time.Duration
}

func LoadApplierConfig() *ApplierConfig {
	timeout := 30 * time.Second
	if raw := os.Getenv("APP_SYNC_TIMEOUT"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			timeout = parsed
		}
	}

	return &ApplierConfig{
		GitRepoPath:    os.Getenv("GIT_REPO_PATH"),
		GitAuthorName:  getEnvOrDefault("GIT_AUTHOR_NAME", "bulk-operations"),
		GitAuthorEmail: getEnvOrDefault("GIT_AUTHOR_EMAIL", "bulk-operations@localhost"),
		GitRemote:      os.Getenv("GIT_REMOTE"),
		SyncWebhookURL: os.Getenv("APP_SYNC_WEBHOOK_URL"),
		SyncTimeout:    timeout,
	}
}
