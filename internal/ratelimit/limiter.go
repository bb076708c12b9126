// Package ratelimit throttles mutating HTTP requests (cancel, retry,
// delete) per operator, using a Redis-backed fixed-window counter.
package ratelimit

import (
	_ "embed"
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/slurmplan/internal/logger"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Result is the outcome of one rate-limit check.
type Result struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// Limiter checks per-operator request limits.
type Limiter struct {
	redis  *redis.Client
	script *redis.Script
	log    *logger.Logger
}

func New(client *redis.Client, log *logger.Logger) *Limiter {
	return &Limiter{redis: client, script: redis.NewScript(rateLimitScript), log: log}
}

// CheckOperator checks the limit for one operator id over a 60s window.
func (l *Limiter) CheckOperator(ctx context.Context, operatorID string, limit int64) (*Result, error) {
	key := fmt.Sprintf("ratelimit:operator:%s", operatorID)
	return l.checkLimit(ctx, key, limit, 60)
}

func (l *Limiter) checkLimit(ctx context.Context, key string, limit int64, windowSec int) (*Result, error) {
	raw, err := l.script.Run(ctx, l.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	arr, ok := raw.([]interface{})
	if !ok || len(arr) != 4 {
		return nil, fmt.Errorf("unexpected rate limit script result")
	}

	res := &Result{
		Allowed:           arr[0].(int64) == 1,
		CurrentCount:      arr[1].(int64),
		Limit:             arr[2].(int64),
		RetryAfterSeconds: arr[3].(int64),
	}
	if !res.Allowed {
		l.log.Warn("operator rate limit exceeded", "key", key, "current", res.CurrentCount, "limit", limit)
	}
	return res, nil
}
