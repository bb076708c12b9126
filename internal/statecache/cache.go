// Package statecache fronts the scheduler adapter's accounting call
// with a short-TTL Redis cache, so a burst of get_jobs calls doesn't
// re-invoke the external accounting command once per caller. Absence
// of Redis, or any Redis error, degrades transparently to an
// uncached call — this is an optimization, never a correctness
// dependency.
package statecache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/slurmplan/internal/logger"
	"github.com/lyzr/slurmplan/internal/store"
)

// Hydrator is the uncached scheduler call this cache sits in front of.
type Hydrator interface {
	State(ids []string) (map[string]store.JobState, error)
}

// Cache wraps a Hydrator with a Redis-backed cache.
type Cache struct {
	redis *redis.Client
	inner Hydrator
	ttl   time.Duration
	log   *logger.Logger
}

func New(client *redis.Client, inner Hydrator, ttl time.Duration, log *logger.Logger) *Cache {
	return &Cache{redis: client, inner: inner, ttl: ttl, log: log}
}

func cacheKey(id string) string { return "jobstate:" + id }

// State checks the cache for every id in one pipelined round-trip;
// only the miss set is sent to the wrapped Hydrator, in a single call
// regardless of how many ids missed — the batching guarantee applies
// to the external call count, not to cache lookups.
func (c *Cache) State(ids []string) (map[string]store.JobState, error) {
	if len(ids) == 0 {
		return map[string]store.JobState{}, nil
	}
	ctx := context.Background()

	cached, err := c.getMultiple(ctx, ids)
	if err != nil {
		c.log.Warn("state cache read failed, falling back to uncached call", "error", err)
		return c.inner.State(ids)
	}

	result := make(map[string]store.JobState, len(ids))
	var missed []string
	for _, id := range ids {
		if s, ok := cached[id]; ok {
			result[id] = s
		} else {
			missed = append(missed, id)
		}
	}
	if len(missed) == 0 {
		return result, nil
	}

	fresh, err := c.inner.State(missed)
	if err != nil {
		return nil, err
	}
	for id, state := range fresh {
		result[id] = state
		c.set(ctx, id, state)
	}
	return result, nil
}

func (c *Cache) getMultiple(ctx context.Context, ids []string) (map[string]store.JobState, error) {
	pipe := c.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, cacheKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("pipelined state cache read: %w", err)
	}

	out := make(map[string]store.JobState)
	for i, cmd := range cmds {
		val, err := cmd.Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			continue
		}
		var state store.JobState
		if err := json.Unmarshal([]byte(val), &state); err != nil {
			continue
		}
		out[ids[i]] = state
	}
	return out, nil
}

func (c *Cache) set(ctx context.Context, id string, state store.JobState) {
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, cacheKey(id), raw, c.ttl).Err(); err != nil {
		c.log.Warn("state cache write failed", "job_id", id, "error", err)
	}
}
