// Package ratelimit implements fixed-window admission control keyed by
// limiter name and client key.
//
// Gates never fail closed: any internal error admits the request and is
// logged, so a broken counter store cannot deny service outright.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

const (
	LimiterBulk = "bulk"
	LimiterSync = "sync"
	LimiterAuth = "auth"
)

// Policy bounds a named limiter to MaxRequests per Window.
type Policy struct {
	Name        string        `yaml:"name"`
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

func (p Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPolicy)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%w: %s: max_requests must be positive", ErrInvalidPolicy, p.Name)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: %s: window must be positive", ErrInvalidPolicy, p.Name)
	}
	return nil
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before the window resets.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, with a floor of one
// second for rejected decisions.
func (d Decision) RetryAfterSeconds(now time.Time) int {
	secs := int(math.Ceil(d.RetryAfter(now).Seconds()))
	if secs < 1 && !d.Allowed {
		return 1
	}
	return secs
}

// Gate admits or rejects requests. Implementations must be safe for
// concurrent use and must never block on anything but their counter store.
type Gate interface {
	Admit(ctx context.Context, limiter, key string) Decision
}

// RejectFunc observes every rejected request.
type RejectFunc func(ctx context.Context, limiter, key string, d Decision)

// LogRejection emits a structured security event for a rejected request.
func LogRejection(ctx context.Context, limiter, key string, d Decision) {
	slog.WarnContext(ctx, "rate limit exceeded",
		slog.String("event", "security.rate_limit.reject"),
		slog.String("limiter", limiter),
		slog.String("client_key", key),
		slog.Int("limit", d.Limit),
		slog.Time("reset_at", d.ResetAt),
	)
}

// ChainRejectFuncs calls every non-nil hook in order.
func ChainRejectFuncs(fns ...RejectFunc) RejectFunc {
	return func(ctx context.Context, limiter, key string, d Decision) {
		for _, fn := range fns {
			if fn != nil {
				fn(ctx, limiter, key, d)
			}
		}
	}
}

func allowOnError(ctx context.Context, limiter, key string, err error) Decision {
	slog.ErrorContext(ctx, "rate limiter failed, admitting request",
		slog.String("event", "rate_limit.fail_open"),
		slog.String("limiter", limiter),
		slog.String("client_key", key),
		slog.String("error", err.Error()),
	)
	return Decision{Allowed: true}
}

type options struct {
	now      func() time.Time
	onReject RejectFunc
}

type Option func(*options)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithRejectHook sets the hook fired on every rejection. Defaults to LogRejection.
func WithRejectHook(fn RejectFunc) Option {
	return func(o *options) {
		o.onReject = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:      time.Now,
		onReject: LogRejection,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func indexPolicies(policies []Policy) (map[string]Policy, error) {
	idx := make(map[string]Policy, len(policies))
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		idx[p.Name] = p
	}
	return idx, nil
}
