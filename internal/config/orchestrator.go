package config

import (
	"time"
)

const (
	orchestratorMaxActiveEnv      = "ORCHESTRATOR_MAX_ACTIVE_OPERATIONS"
	orchestratorQueueSizeEnv      = "ORCHESTRATOR_QUEUE_SIZE"
	orchestratorConcurrencyEnv    = "ORCHESTRATOR_CONCURRENCY"
	orchestratorMaxConcurrencyEnv = "ORCHESTRATOR_MAX_CONCURRENCY"
	orchestratorRetriesEnv        = "ORCHESTRATOR_RETRIES"
	orchestratorMaxRetriesEnv     = "ORCHESTRATOR_MAX_RETRIES"
	orchestratorRetryDelayEnv     = "ORCHESTRATOR_RETRY_DELAY"
	orchestratorTimeoutEnv        = "ORCHESTRATOR_OPERATION_TIMEOUT"
	orchestratorMaxTargetsEnv     = "ORCHESTRATOR_MAX_TARGETS"

	defaultMaxActiveOperations = 4
	defaultQueueSize           = 256
	defaultConcurrency         = 5
	defaultMaxConcurrency      = 20
	defaultRetries             = 2
	defaultMaxRetries          = 5
	defaultRetryDelay          = time.Second
	defaultOperationTimeout    = 0
	defaultMaxTargets          = 500
)

type OrchestratorConfig struct {
	MaxActiveOperations int
	QueueSize           int
	Concurrency         int
	MaxConcurrency      int
	Retries             int
	MaxRetries          int
	RetryDelay          time.Duration
	// OperationTimeout of zero disables the deadline.
	OperationTimeout time.Duration
	MaxTargets       int
}

func LoadOrchestratorConfig() (*OrchestratorConfig, error) {
	cfg := &OrchestratorConfig{}
	var err error

	ints := []struct {
		dst      *int
		key      string
		def      int
		minValue int
	}{
		{&cfg.MaxActiveOperations, orchestratorMaxActiveEnv, defaultMaxActiveOperations, 1},
		{&cfg.QueueSize, orchestratorQueueSizeEnv, defaultQueueSize, 1},
		{&cfg.Concurrency, orchestratorConcurrencyEnv, defaultConcurrency, 1},
		{&cfg.MaxConcurrency, orchestratorMaxConcurrencyEnv, defaultMaxConcurrency, 1},
		{&cfg.Retries, orchestratorRetriesEnv, defaultRetries, 0},
		{&cfg.MaxRetries, orchestratorMaxRetriesEnv, defaultMaxRetries, 0},
		{&cfg.MaxTargets, orchestratorMaxTargetsEnv, defaultMaxTargets, 1},
	}
	for _, f := range ints {
		if *f.dst, err = intFromEnv(f.key, f.def, f.minValue); err != nil {
			return nil, err
		}
	}

	if cfg.RetryDelay, err = durationFromEnv(orchestratorRetryDelayEnv, defaultRetryDelay); err != nil {
		return nil, err
	}
	if cfg.OperationTimeout, err = durationFromEnv(orchestratorTimeoutEnv, defaultOperationTimeout); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func (c *OrchestratorConfig) Validate() error {
	if c.Concurrency > c.MaxConcurrency {
		return fmtErr(ErrInvalidInteger, "%s (%d) exceeds %s (%d)",
			orchestratorConcurrencyEnv, c.Concurrency, orchestratorMaxConcurrencyEnv, c.MaxConcurrency)
	}
	if c.Retries > c.MaxRetries {
		return fmtErr(ErrInvalidInteger, "%s (%d) exceeds %s (%d)",
			orchestratorRetriesEnv, c.Retries, orchestratorMaxRetriesEnv, c.MaxRetries)
	}
	return nil
}
