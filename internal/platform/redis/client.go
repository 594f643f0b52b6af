// Package redis owns the shared go-redis connection used by the
// notification dedupe fast path.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"auditgov/internal/platform/config"
)

// Client embeds the go-redis client so callers can hand it to anything that
// accepts redis.UniversalClient.
type Client struct {
	*redis.Client
}

// New parses cfg.URL, applies pool settings and verifies the server answers
// PING. A blank URL means Redis is disabled and yields (nil, nil).
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	applyPool(opts, cfg)

	c := &Client{Client: redis.NewClient(opts)}
	if err := c.Health(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis unreachable at startup: %w", err)
	}
	return c, nil
}

// applyPool overrides go-redis defaults only for values set in config.
func applyPool(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	for _, o := range []struct {
		dst *time.Duration
		src time.Duration
	}{
		{&opts.DialTimeout, cfg.DialTimeout},
		{&opts.ReadTimeout, cfg.ReadTimeout},
		{&opts.WriteTimeout, cfg.WriteTimeout},
	} {
		if o.src > 0 {
			*o.dst = o.src
		}
	}
}

// Health pings the server; used by /health/ready.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
