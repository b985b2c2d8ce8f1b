// Package cache provides the best-effort key/value cache used for identity lookups.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"

	"github.com/Clark-Hu/universal-rate/internal/metrics"
)

// Cache stores JSON-encodable values with a TTL. A miss is (false, nil).
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Nop never stores anything. Used when no Redis URL is configured.
type Nop struct{}

func (Nop) Get(context.Context, string, any) (bool, error) { return false, nil }

func (Nop) Set(context.Context, string, any, time.Duration) error { return nil }

// Redis is a Cache backed by a go-redis client.
type Redis struct {
	client *redis.Client
}

// NewRedis parses a redis:// URL and verifies connectivity.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues(namespace(key)).Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	metrics.CacheHits.WithLabelValues(namespace(key)).Inc()
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// namespace keeps the first two key segments, e.g. "neynar:fid".
func namespace(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return parts[0]
	}
	return parts[0] + ":" + parts[1]
}
