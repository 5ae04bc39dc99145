package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/kigyomail/internal/config"
)

const keyTrigger = "kigyomail:trigger:%s:%s"

// TriggerLimiter throttles the cron trigger endpoints per caller.
type TriggerLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewTriggerLimiter(cfg config.Config, client *redis.Client) *TriggerLimiter {
	if client == nil || cfg.Redis.TriggerRate <= 0 || cfg.Redis.TriggerBurst <= 0 {
		return nil
	}
	return &TriggerLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.Redis.TriggerRate,
		burst:  cfg.Redis.TriggerBurst,
	}
}

func (l *TriggerLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *TriggerLimiter) Allow(ctx context.Context, endpoint, caller string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyTrigger, strings.TrimSpace(endpoint), strings.TrimSpace(caller))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
