package quota

import (
	"context"
	"time"

	domquota "github.com/kailas-cloud/emsal/internal/domain/quota"
)

// LedgerStore persists per-user counters. Reserve must be atomic on its own.
type LedgerStore interface {
	// Reserve increments the bucket when it is below limit and reports the resulting count.
	Reserve(ctx context.Context, b domquota.Bucket, limit int64) (used int64, ok bool, err error)
	Release(ctx context.Context, b domquota.Bucket) error
	Used(ctx context.Context, b domquota.Bucket) (int64, error)
	// Open records the first admission time for fixed windows and returns the recorded time.
	Open(ctx context.Context, userID, plan string, now time.Time) (time.Time, error)
	OpenedAt(ctx context.Context, userID, plan string) (time.Time, bool, error)
}

// PlanResolver maps a user to their subscription plan.
type PlanResolver interface {
	Resolve(ctx context.Context, userID string) (domquota.Plan, error)
}
