package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type entryKey struct {
	limiter string
	key     string
}

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryGate keeps window counters in process memory. State is not shared
// between instances; use RedisGate for that.
type MemoryGate struct {
	policies map[string]Policy
	opts     options

	mu      sync.Mutex
	entries map[entryKey]*entry
}

var _ Gate = (*MemoryGate)(nil)

func NewMemoryGate(policies []Policy, opts ...Option) (*MemoryGate, error) {
	idx, err := indexPolicies(policies)
	if err != nil {
		return nil, err
	}

	return &MemoryGate{
		policies: idx,
		opts:     buildOptions(opts),
		entries:  make(map[entryKey]*entry),
	}, nil
}

func (g *MemoryGate) Admit(ctx context.Context, limiter, key string) (d Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			d = allowOnError(ctx, limiter, key, fmt.Errorf("panic: %v", rec))
		}
	}()

	policy, ok := g.policies[limiter]
	if !ok {
		return allowOnError(ctx, limiter, key, fmt.Errorf("%w: %s", ErrUnknownLimiter, limiter))
	}

	d = g.count(entryKey{limiter: limiter, key: key}, policy, g.opts.now())

	if !d.Allowed && g.opts.onReject != nil {
		g.opts.onReject(ctx, limiter, key, d)
	}

	return d
}

// count records one request against k's current window.
func (g *MemoryGate) count(k entryKey, policy Policy, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, exists := g.entries[k]
	if !exists || !now.Before(e.resetAt) {
		e = &entry{resetAt: now.Add(policy.Window)}
		g.entries[k] = e
	}
	e.count++

	return Decision{
		Allowed:   e.count <= policy.MaxRequests,
		Limit:     policy.MaxRequests,
		Remaining: max(policy.MaxRequests-e.count, 0),
		ResetAt:   e.resetAt,
	}
}

// Purge drops every entry whose window has elapsed at now and reports how
// many were removed.
func (g *MemoryGate) Purge(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for k, e := range g.entries {
		if !now.Before(e.resetAt) {
			delete(g.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (g *MemoryGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// RunJanitor purges expired entries every interval until ctx is done.
func (g *MemoryGate) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Purge(g.opts.now()); n > 0 {
				slog.DebugContext(ctx, "purged expired rate limit entries", slog.Int("removed", n))
			}
		}
	}
}
