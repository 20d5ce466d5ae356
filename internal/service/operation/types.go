package operation

import (
	"time"

	"github.com/KasumiMercury/primind-bulk-operations/internal/domain"
	"github.com/KasumiMercury/primind-bulk-operations/internal/ratelimit"
)

type SubmitRequest struct {
	ClientKey     string
	OperationType domain.OperationType
	Targets       []string
	Change        domain.ChangeDescriptor
	// Concurrency and Retries override the configured defaults when set.
	Concurrency *int
	Retries     *int
}

type ListResult struct {
	Operations []*domain.Operation
	Total      int
}

// Config bounds execution. Zero values fall back to the defaults below.
type Config struct {
	Concurrency         int
	MaxConcurrency      int
	Retries             int
	MaxRetries          int
	RetryDelay          time.Duration
	OperationTimeout    time.Duration
	MaxTargets          int
	MaxActiveOperations int
	QueueSize           int
}

const (
	defaultConcurrency         = 5
	defaultMaxConcurrency      = 20
	defaultMaxRetries          = 5
	defaultRetryDelay          = time.Second
	defaultMaxTargets          = 500
	defaultMaxActiveOperations = 4
	defaultQueueSize           = 256
)

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = max(defaultMaxConcurrency, c.Concurrency)
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = max(defaultMaxRetries, c.Retries)
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxTargets <= 0 {
		c.MaxTargets = defaultMaxTargets
	}
	if c.MaxActiveOperations <= 0 {
		c.MaxActiveOperations = defaultMaxActiveOperations
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	return c
}

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	ActiveOperations int
	QueuedOperations int
	InFlightTargets  int
}

// LimiterFor maps an operation type to its rate limiter class.
func LimiterFor(opType domain.OperationType) string {
	switch opType {
	case domain.OperationTypeAppSync:
		return ratelimit.LimiterSync
	default:
		return ratelimit.LimiterBulk
	}
}
