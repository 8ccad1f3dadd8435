package fpcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/domain/fingerprint"
)

// Tier names.
const (
	TierKeywords = "keywords"
	TierSearch   = "search"
	TierScores   = "scores"
)

// Tier is a typed view over a Store for one pipeline stage.
type Tier[T any] struct {
	name       string
	store      Store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// NewTier creates a typed tier.
// cacheTotal is a counter vec with labels "tier" and "result" ("hit"/"miss"), passed explicitly.
func NewTier[T any](
	name string,
	s Store,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Tier[T] {
	return &Tier[T]{
		name:       name,
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Name returns the tier name.
func (t *Tier[T]) Name() string { return t.name }

// TTL returns the default entry lifetime.
func (t *Tier[T]) TTL() time.Duration { return t.ttl }

// Get returns the value cached under fp. Undecodable entries read as misses.
func (t *Tier[T]) Get(ctx context.Context, fp fingerprint.Fingerprint) (T, bool) {
	var v T
	data, ok := t.store.Get(ctx, t.key(fp))
	if !ok {
		t.inc("miss")
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		t.logger.Warn("Failed to decode cache entry",
			zap.String("tier", t.name), zap.String("fingerprint", fp.String()), zap.Error(err))
		t.inc("miss")
		var zero T
		return zero, false
	}
	t.inc("hit")
	return v, true
}

// Put caches v under fp with the tier's TTL.
func (t *Tier[T]) Put(ctx context.Context, fp fingerprint.Fingerprint, v T) {
	t.PutWithTTL(ctx, fp, v, t.ttl)
}

// PutWithTTL caches v under fp with an explicit TTL.
func (t *Tier[T]) PutWithTTL(ctx context.Context, fp fingerprint.Fingerprint, v T, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		t.logger.Warn("Failed to encode cache entry",
			zap.String("tier", t.name), zap.String("fingerprint", fp.String()), zap.Error(err))
		return
	}
	t.store.Put(ctx, t.key(fp), data, ttl)
}

func (t *Tier[T]) key(fp fingerprint.Fingerprint) string {
	return t.name + ":" + fp.String()
}

func (t *Tier[T]) inc(result string) {
	if t.cacheTotal != nil {
		t.cacheTotal.WithLabelValues(t.name, result).Inc()
	}
}
