package ratelimit

import "errors"

var (
	ErrUnknownLimiter = errors.New("unknown limiter")
	ErrInvalidPolicy  = errors.New("invalid rate limit policy")
)
