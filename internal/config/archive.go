package config

import (
	"os"
)

type ArchiveConfig struct {
	Enabled      bool
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

func LoadArchiveConfig() *ArchiveConfig {
	return &ArchiveConfig{
		Enabled:      os.Getenv("ARCHIVE_ENABLED") == "true",
		Bucket:       os.Getenv("ARCHIVE_S3_BUCKET"),
		Prefix:       getEnvOrDefault("ARCHIVE_S3_PREFIX", "operations/"),
		Region:       os.Getenv("ARCHIVE_S3_REGION"),
		Endpoint:     os.Getenv("ARCHIVE_S3_ENDPOINT"),
		UsePathStyle: os.Getenv("ARCHIVE_S3_PATH_STYLE") == "true",
	}
}

func (c *ArchiveConfig) Validate() error {
	if c.Enabled && c.Bucket == "" {
		return ErrArchiveBucketMissing
	}
	return nil
}
