package executor

import "errors"

var (
	ErrInvalidConcurrency = errors.New("concurrency must be at least 1")
	ErrInvalidRetries     = errors.New("retries must not be negative")
	ErrActionPanicked     = errors.New("action panicked")
	ErrNotStarted         = errors.New("unit not started")
	ErrCallbackPanicked   = errors.New("completion callback panicked")
)
