package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/invoicekits/invoicekits/internal/config"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLocker_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	locker := NewLocker(newRedis(t))

	release, err := locker.Acquire(ctx, "batch:claim:1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "batch:claim:1", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx), "double release is harmless")

	again, err := locker.Acquire(ctx, "batch:claim:1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLocker_NilGrantsEverything(t *testing.T) {
	var locker *Locker
	release, err := locker.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.NoError(t, release(context.Background()))
	assert.Nil(t, NewLocker(nil))
}

func TestUploadLimiter_Burst(t *testing.T) {
	ctx := context.Background()
	limiter := NewUploadLimiter(newRedis(t), config.Config{Batch: config.BatchConfig{UploadsPerMinute: 2}})
	require.True(t, limiter.Enabled())

	company := snowflake.ID(7)
	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, company)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := limiter.Allow(ctx, company)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.InDelta(t, 30, res.RetryAfter.Seconds(), 0.01)

	other, err := limiter.Allow(ctx, snowflake.ID(8))
	require.NoError(t, err)
	assert.True(t, other.Allowed, "buckets are per company")
}

func TestUploadLimiter_DisabledWithoutRedis(t *testing.T) {
	limiter := NewUploadLimiter(nil, config.Config{Batch: config.BatchConfig{UploadsPerMinute: 2}})
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), snowflake.ID(1))
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
