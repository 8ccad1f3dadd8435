package quota

import (
	"context"
	"sync"
	"time"

	domquota "github.com/kailas-cloud/emsal/internal/domain/quota"
)

// fakeLedgerStore is an in-memory LedgerStore with error injection.
type fakeLedgerStore struct {
	mu         sync.Mutex
	used       map[string]int64
	opened     map[string]time.Time
	reserveErr error
	releaseErr error
	releases   int
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{used: map[string]int64{}, opened: map[string]time.Time{}}
}

func (f *fakeLedgerStore) Reserve(_ context.Context, b domquota.Bucket, limit int64) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reserveErr != nil {
		return 0, false, f.reserveErr
	}
	n := f.used[b.ID()]
	if limit > 0 && n >= limit {
		return n, false, nil
	}
	f.used[b.ID()] = n + 1
	return n + 1, true, nil
}

func (f *fakeLedgerStore) Release(_ context.Context, b domquota.Bucket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	if f.releaseErr != nil {
		return f.releaseErr
	}
	if f.used[b.ID()] > 0 {
		f.used[b.ID()]--
	}
	return nil
}

func (f *fakeLedgerStore) Used(_ context.Context, b domquota.Bucket) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used[b.ID()], nil
}

func (f *fakeLedgerStore) Open(_ context.Context, userID, plan string, now time.Time) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := userID + ":" + plan
	if t, ok := f.opened[k]; ok {
		return t, nil
	}
	f.opened[k] = now
	return now, nil
}

func (f *fakeLedgerStore) OpenedAt(_ context.Context, userID, plan string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.opened[userID+":"+plan]
	return t, ok, nil
}

var testPlans = []domquota.Plan{
	{Name: "trial", Limit: 5, Window: domquota.WindowFixed, Duration: 72 * time.Hour},
	{Name: "basic", Limit: 2, Window: domquota.WindowMonth},
	{Name: "unlimited", Window: domquota.WindowDay},
}

func mustPlans(users map[string]string, def string) *StaticPlans {
	p, err := NewStaticPlans(testPlans, users, def)
	if err != nil {
		panic(err)
	}
	return p
}
