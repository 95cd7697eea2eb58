package cimodel

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the handle a Factory injects into every record. The record
// lifecycle never calls it; record types use it through Record.Cache for
// their own lookups.
type Cache interface {
	// Get returns ErrCacheMiss when key is not present
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value; ttl <= 0 keeps it until deleted
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NoOpCache never stores anything
type NoOpCache struct{}

func (NoOpCache) Get(ctx context.Context, key string) ([]byte, error) { return nil, ErrCacheMiss }
func (NoOpCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (NoOpCache) Delete(ctx context.Context, key string) error { return nil }

// RedisCache implements Cache on a go-redis client. All keys are prefixed so
// several applications can share one Redis database.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache wraps an existing client
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Ping checks that Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client
func (c *RedisCache) Close() error {
	return c.client.Close()
}
