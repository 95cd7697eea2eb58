package cimodel

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultCachePrefix namespaces cache keys when no prefix is configured
const DefaultCachePrefix = "cimodel:"

// RedisCacheConfig describes the Redis database behind a RedisCache
type RedisCacheConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every cache key
	Prefix string
	// PoolSize caps open connections; zero keeps the go-redis default
	PoolSize int
}

// RedisCacheConfigFromEnv reads REDIS_ADDR (default "localhost:6379"),
// REDIS_PASSWORD, REDIS_DB and CIMODEL_CACHE_PREFIX. A REDIS_DB that is not
// a non-negative integer is a configuration error.
func RedisCacheConfigFromEnv() (RedisCacheConfig, error) {
	cfg := RedisCacheConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		Prefix:   os.Getenv("CIMODEL_CACHE_PREFIX"),
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultCachePrefix
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil || n < 0 {
			return RedisCacheConfig{}, WithContext(ErrInvalidConfig, map[string]interface{}{
				"field":  "REDIS_DB",
				"value":  db,
				"reason": "database index must be a non-negative integer",
			})
		}
		cfg.DB = n
	}
	return cfg, nil
}

// Options converts the config to go-redis client options
func (c RedisCacheConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	}
}

// Open connects to Redis and returns a cache once the server answers a ping
func (c RedisCacheConfig) Open(ctx context.Context) (*RedisCache, error) {
	cache := NewRedisCache(redis.NewClient(c.Options()), c.Prefix)
	if err := cache.Ping(ctx); err != nil {
		cache.Close()
		return nil, fmt.Errorf("redis cache at %s: %w", c.Addr, err)
	}
	return cache, nil
}
