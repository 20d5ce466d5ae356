package config

import "errors"

var (
	ErrRedisAddrMissing        = errors.New("REDIS_ADDR is required")
	ErrInvalidRedisDB          = errors.New("REDIS_DB must be a valid integer")
	ErrInvalidDuration         = errors.New("invalid duration")
	ErrInvalidInteger          = errors.New("invalid integer")
	ErrUnknownRateLimitBackend = errors.New("RATE_LIMIT_BACKEND must be memory or redis")
	ErrUnknownStoreDriver      = errors.New("STORE_DRIVER must be redis, postgres, sqlite or memory")
	ErrStoreDSNMissing         = errors.New("STORE_DSN is required for sql store drivers")
	ErrArchiveBucketMissing    = errors.New("ARCHIVE_S3_BUCKET is required when archiving is enabled")
)
