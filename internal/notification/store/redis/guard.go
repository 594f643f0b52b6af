// Package redis implements the dedupe fast path on Redis SETNX.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "auditgov:notify:dedupe:"

// DedupeGuard claims a dedupe key with SETNX so repeated scans within a day
// skip the database round trip.
type DedupeGuard struct {
	client redis.UniversalClient
}

func NewDedupeGuard(client redis.UniversalClient) *DedupeGuard {
	return &DedupeGuard{client: client}
}

func (g *DedupeGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (g *DedupeGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
