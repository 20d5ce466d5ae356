package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KasumiMercury/primind-bulk-operations/internal/testutil"
)

func TestRedisGate_FixedWindow(t *testing.T) {
	ctx := context.Background()
	client := testutil.StartRedis(ctx, t).Client

	var rejections int
	gate, err := NewRedisGate(client, []Policy{
		{Name: LimiterBulk, MaxRequests: 5, Window: time.Minute},
		{Name: LimiterSync, MaxRequests: 1, Window: 300 * time.Millisecond},
	}, WithRejectHook(func(context.Context, string, string, Decision) { rejections++ }))
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		d := gate.Admit(ctx, LimiterBulk, "client-a")
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 5-i, d.Remaining)
	}

	sixth := gate.Admit(ctx, LimiterBulk, "client-a")
	assert.False(t, sixth.Allowed)
	assert.LessOrEqual(t, sixth.RetryAfterSeconds(time.Now()), 60)
	assert.Equal(t, 1, rejections)

	assert.True(t, gate.Admit(ctx, LimiterSync, "client-a").Allowed, "limiters are independent")
	assert.False(t, gate.Admit(ctx, LimiterSync, "client-a").Allowed)

	time.Sleep(400 * time.Millisecond)
	assert.True(t, gate.Admit(ctx, LimiterSync, "client-a").Allowed, "window expired")

	ttl, err := client.PTTL(ctx, "ratelimit:bulk:client-a").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisGate_FailsOpenWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	server := testutil.StartRedis(ctx, t)
	gate, err := NewRedisGate(server.Client, defaultPolicies())
	require.NoError(t, err)

	server.Stop(t)

	assert.True(t, gate.Admit(ctx, LimiterBulk, "k").Allowed)
}
