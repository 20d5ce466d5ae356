package operation

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrTooManyTargets   = errors.New("too many targets")
	ErrPolicyOutOfRange = errors.New("execution policy out of range")
	ErrQueueFull        = errors.New("operation queue is full")
	ErrStorePanicked    = errors.New("operation store panicked")
)

const RateLimitErrorCode = "RATE_LIMIT_EXCEEDED"

// RateLimitError is returned by Submit when the client key has exhausted its window.
type RateLimitError struct {
	Code       string
	Message    string
	Limiter    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RetryAfterSeconds rounds up, never below one second.
func (e *RateLimitError) RetryAfterSeconds() int {
	return max(int(math.Ceil(e.RetryAfter.Seconds())), 1)
}
