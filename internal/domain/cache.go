package domain

import (
	"context"
	"time"
)

// Cache stores opaque tenant-scoped values with a TTL. Community deployments
// use an in-process LRU, Pro deployments use Redis, optionally fronted by the LRU.
//
// Only rule snapshots go through the cache. Blacklist membership is always
// read from the repository.
type Cache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string `json:"type" mapstructure:"type"`

	LocalMaxSize int           `json:"localMaxSize" mapstructure:"localMaxSize"`
	LocalTTL     time.Duration `json:"localTtl" mapstructure:"localTtl"`

	RedisAddr     string `json:"redisAddr" mapstructure:"redisAddr"`
	RedisPassword string `json:"-" mapstructure:"redisPassword"`
	RedisDB       int    `json:"redisDb" mapstructure:"redisDb"`

	// EnableTwoPhase checks the local LRU before Redis.
	EnableTwoPhase bool `json:"enableTwoPhase" mapstructure:"enableTwoPhase"`
}
