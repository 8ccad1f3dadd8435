package fpcache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/db"
	"github.com/kailas-cloud/emsal/internal/domain"
)

var redisKeyPrefix = domain.KeyPrefix + "cache:"

// kvStore is the consumer interface for the Redis-backed cache (ISP).
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
}

// Redis is a Store backed by a shared key-value database.
// Expiry is native to the database. Hit counts live in a side counter
// written with the same TTL as the value.
type Redis struct {
	store  kvStore
	logger *zap.Logger
}

// NewRedis creates a Redis-backed store.
func NewRedis(s kvStore, logger *zap.Logger) *Redis {
	return &Redis{store: s, logger: logger}
}

// Get returns the cached value or a miss. Failures are logged and read as misses.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	k := redisKeyPrefix + key
	data, err := r.store.Get(ctx, k)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			r.logger.Warn("Failed to get cache entry", zap.String("key", k), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	if _, err := r.store.IncrBy(ctx, hitsKey(k), 1); err != nil {
		r.logger.Debug("Failed to count cache hit", zap.String("key", k), zap.Error(err))
	}
	return data, true
}

// Put stores value with a native TTL and resets the hit counter.
func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	k := redisKeyPrefix + key
	if err := r.store.SetWithTTL(ctx, k, value, ttl); err != nil {
		r.logger.Warn("Failed to put cache entry", zap.String("key", k), zap.Error(err))
		return
	}
	if err := r.store.SetWithTTL(ctx, hitsKey(k), []byte("0"), ttl); err != nil {
		r.logger.Debug("Failed to reset cache hit counter", zap.String("key", k), zap.Error(err))
	}
}

// Sweep is a no-op: Redis evicts expired keys itself.
func (r *Redis) Sweep(context.Context) int { return 0 }

func hitsKey(k string) string { return k + ":hits" }
