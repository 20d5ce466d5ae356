// Package testutil starts throwaway backing services for integration tests.
package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	redismodule "github.com/testcontainers/testcontainers-go/modules/redis"
)

const redisImage = "redis:8-alpine"

// Redis is a disposable redis server. It is stopped when the test ends.
type Redis struct {
	Client *redis.Client

	container *redismodule.RedisContainer
	stopOnce  sync.Once
}

// StartRedis skips the test in -short mode or when no container runtime is available.
func StartRedis(ctx context.Context, t *testing.T) *Redis {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Skipf("failed to start redis container: %v", r)
		}
	}()

	container, err := redismodule.Run(ctx, redisImage)
	if err != nil {
		t.Skipf("failed to start redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Skipf("failed to get redis endpoint: %v", err)
	}

	r := &Redis{
		Client:    redis.NewClient(&redis.Options{Addr: endpoint}),
		container: container,
	}
	t.Cleanup(func() { r.Stop(t) })

	return r
}

// Flush empties the current database between subtests.
func (r *Redis) Flush(t *testing.T) {
	t.Helper()
	if err := r.Client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}

// Stop terminates the server early, for tests that need redis to go away.
func (r *Redis) Stop(t *testing.T) {
	r.stopOnce.Do(func() {
		if err := r.Client.Close(); err != nil {
			t.Logf("failed to close redis client: %v", err)
		}
		if err := r.container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})
}
