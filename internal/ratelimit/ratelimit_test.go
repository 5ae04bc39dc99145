package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/kigyomail/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLockKey(t *testing.T) {
	assert.Equal(t, "kigyomail:job:fetch_corporations", JobLockKey(" fetch_corporations "))
}

func TestDisabledWithoutRedis(t *testing.T) {
	assert.Nil(t, NewLocker(nil))
	assert.False(t, NewLocker(nil).Enabled())

	limiter := NewTriggerLimiter(config.Config{Redis: config.RedisConfig{TriggerRate: 1, TriggerBurst: 1}}, nil)
	assert.False(t, limiter.Enabled())

	res, err := limiter.Allow(context.Background(), "fetch-corporations", "cron")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	if err := NewLocker(nil).Release(context.Background(), JobLockKey("x"), "token"); err != nil {
		t.Fatalf("release on disabled locker: %v", err)
	}
	_, _, err = NewLocker(nil).TryLock(context.Background(), JobLockKey("x"), time.Second)
	assert.Error(t, err)
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, time.Second, defaultBucketTTL(0, 3))
	assert.Equal(t, 12*time.Second, defaultBucketTTL(0.5, 3))
	assert.Equal(t, time.Second, defaultBucketTTL(100, 1))
}

func TestBuildResultRetryAfter(t *testing.T) {
	denied := buildResult(false, 0.5, 1_000, 0.25, 3)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 2*time.Second, denied.RetryAfter)
	assert.Equal(t, 3, denied.Limit)

	allowed := buildResult(true, 2.4, 1_000, 0.25, 3)
	assert.Equal(t, time.Duration(0), allowed.RetryAfter)
	assert.Equal(t, 2, allowed.Remaining)
}

func TestCastHelpers(t *testing.T) {
	assert.Equal(t, int64(1), castToInt(int64(1)))
	assert.Equal(t, int64(7), castToInt("7"))
	assert.InDelta(t, 1.75, castToFloat("1.75"), 0.0001)
	assert.Equal(t, 0.0, castToFloat("nan?"))
}
