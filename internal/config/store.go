package config

import (
	"os"
	"time"
)

const (
	storeDriverEnv    = "STORE_DRIVER"
	storeDSNEnv       = "STORE_DSN"
	storeRecordTTLEnv = "STORE_RECORD_TTL"

	defaultStoreDriver    = StoreDriverRedis
	defaultStoreRecordTTL = 7 * 24 * time.Hour
)

type StoreDriver string

const (
	StoreDriverRedis    StoreDriver = "redis"
	StoreDriverPostgres StoreDriver = "postgres"
	StoreDriverSQLite   StoreDriver = "sqlite"
	StoreDriverMemory   StoreDriver = "memory"
)

type StoreConfig struct {
	Driver StoreDriver
	DSN    string
	// RecordTTL bounds how long Redis keeps operation records.
	RecordTTL time.Duration
}

func LoadStoreConfig() *StoreConfig {
	ttl := defaultStoreRecordTTL
	if raw := os.Getenv(storeRecordTTLEnv); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			ttl = parsed
		}
	}

	return &StoreConfig{
		Driver:    StoreDriver(getEnvOrDefault(storeDriverEnv, string(defaultStoreDriver))),
		DSN:       os.Getenv(storeDSNEnv),
		RecordTTL: ttl,
	}
}

func (c *StoreConfig) Validate() error {
	switch c.Driver {
	case StoreDriverRedis, StoreDriverMemory:
		return nil
	case StoreDriverPostgres, StoreDriverSQLite:
		if c.DSN == "" {
			return ErrStoreDSNMissing
		}
		return nil
	default:
		return ErrUnknownStoreDriver
	}
}
