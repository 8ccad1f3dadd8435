// Package quota persists per-user search counters in a key-value database.
package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/emsal/internal/db"
	"github.com/kailas-cloud/emsal/internal/domain"
	domquota "github.com/kailas-cloud/emsal/internal/domain/quota"
)

// store is the consumer interface for quota counters (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store implements the quota ledger on top of INCRBY counters with TTL.
type Store struct {
	store store
	grace time.Duration
	now   func() time.Time
}

// New creates a Redis-backed ledger store.
// grace is how long a counter outlives its window (recommended: 48h).
func New(s store, grace time.Duration) *Store {
	return &Store{store: s, grace: grace, now: time.Now}
}

// Reserve increments the bucket if it is below limit (limit <= 0 means unlimited).
// An increment that overshoots the limit is rolled back, so concurrent callers
// never leave the counter above limit.
func (s *Store) Reserve(ctx context.Context, b domquota.Bucket, limit int64) (int64, bool, error) {
	key := counterKey(b)
	n, err := s.store.IncrBy(ctx, key, 1)
	if err != nil {
		return 0, false, fmt.Errorf("quota INCRBY %s: %w", key, err)
	}

	// Set TTL only if the key has no expiry yet (NX: not reset on repeat).
	if err := s.store.Expire(ctx, key, s.ttl(b), true); err != nil {
		return 0, false, fmt.Errorf("quota EXPIRE %s: %w", key, err)
	}

	if limit > 0 && n > limit {
		if _, err := s.store.IncrBy(ctx, key, -1); err != nil {
			return 0, false, fmt.Errorf("quota rollback %s: %w", key, err)
		}
		return n - 1, false, nil
	}
	return n, true, nil
}

// Release returns one unit to the bucket. The counter never goes below zero.
func (s *Store) Release(ctx context.Context, b domquota.Bucket) error {
	key := counterKey(b)
	n, err := s.store.IncrBy(ctx, key, -1)
	if err != nil {
		return fmt.Errorf("quota release %s: %w", key, err)
	}
	if n < 0 {
		if _, err := s.store.IncrBy(ctx, key, -n); err != nil {
			return fmt.Errorf("quota release clamp %s: %w", key, err)
		}
	}
	return nil
}

// Used returns the bucket's counter. Returns 0 if the key does not exist.
func (s *Store) Used(ctx context.Context, b domquota.Bucket) (int64, error) {
	key := counterKey(b)
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("quota GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("quota GET %s parse: %w", key, err)
	}
	return max(0, val), nil
}

// Open records now as the user's first admission on plan unless one is recorded,
// and returns the recorded time. Open markers never expire.
func (s *Store) Open(ctx context.Context, userID, plan string, now time.Time) (time.Time, error) {
	key := openedKey(userID, plan)
	ok, err := s.store.SetNX(ctx, key, []byte(strconv.FormatInt(now.Unix(), 10)), 0)
	if err != nil {
		return time.Time{}, fmt.Errorf("quota SETNX %s: %w", key, err)
	}
	if ok {
		return time.Unix(now.Unix(), 0).UTC(), nil
	}
	t, found, err := s.OpenedAt(ctx, userID, plan)
	if err != nil {
		return time.Time{}, err
	}
	if !found {
		return time.Time{}, fmt.Errorf("quota %s: marker vanished", key)
	}
	return t, nil
}

// OpenedAt returns the recorded first admission, if any.
func (s *Store) OpenedAt(ctx context.Context, userID, plan string) (time.Time, bool, error) {
	key := openedKey(userID, plan)
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("quota GET %s: %w", key, err)
	}
	sec, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("quota GET %s parse: %w", key, err)
	}
	return time.Unix(sec, 0).UTC(), true, nil
}

// ttl keeps a counter until its window closes plus grace.
func (s *Store) ttl(b domquota.Bucket) time.Duration {
	ttl := b.End.Sub(s.now()) + s.grace
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func counterKey(b domquota.Bucket) string {
	return domain.KeyPrefix + "quota:used:" + b.ID()
}

func openedKey(userID, plan string) string {
	return fmt.Sprintf("%squota:opened:%s:%s", domain.KeyPrefix, userID, plan)
}
