package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// admitScript increments the window counter and starts the window on the
// first hit. A key that somehow lost its TTL gets a fresh one.
var admitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if count == 1 or ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisGate shares window counters across instances through Redis. Each
// window is a key that expires on its own, so no janitor is needed.
type RedisGate struct {
	client   redis.UniversalClient
	policies map[string]Policy
	opts     options
}

var _ Gate = (*RedisGate)(nil)

func NewRedisGate(client redis.UniversalClient, policies []Policy, opts ...Option) (*RedisGate, error) {
	idx, err := indexPolicies(policies)
	if err != nil {
		return nil, err
	}

	return &RedisGate{
		client:   client,
		policies: idx,
		opts:     buildOptions(opts),
	}, nil
}

func (g *RedisGate) Admit(ctx context.Context, limiter, key string) (d Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			d = allowOnError(ctx, limiter, key, fmt.Errorf("panic: %v", rec))
		}
	}()

	policy, ok := g.policies[limiter]
	if !ok {
		return allowOnError(ctx, limiter, key, fmt.Errorf("%w: %s", ErrUnknownLimiter, limiter))
	}

	redisKey := redisKeyPrefix + limiter + ":" + key
	now := g.opts.now()

	res, err := admitScript.Run(ctx, g.client, []string{redisKey}, policy.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return allowOnError(ctx, limiter, key, err)
	}
	if len(res) != 2 {
		return allowOnError(ctx, limiter, key, fmt.Errorf("unexpected script reply length %d", len(res)))
	}

	count := int(res[0])
	remainingTTL := time.Duration(res[1]) * time.Millisecond

	d = Decision{
		Allowed:   count <= policy.MaxRequests,
		Limit:     policy.MaxRequests,
		Remaining: max(policy.MaxRequests-count, 0),
		ResetAt:   now.Add(remainingTTL),
	}

	if !d.Allowed && g.opts.onReject != nil {
		g.opts.onReject(ctx, limiter, key, d)
	}

	return d
}
