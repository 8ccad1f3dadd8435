package quota

import (
	"context"
	"sync"
	"time"

	domquota "github.com/kailas-cloud/emsal/internal/domain/quota"
)

// Memory is an in-process ledger store. State is lost on restart.
type Memory struct {
	mu     sync.Mutex
	used   map[string]int64
	opened map[string]time.Time
}

// NewMemory creates an empty in-memory ledger store.
func NewMemory() *Memory {
	return &Memory{
		used:   make(map[string]int64),
		opened: make(map[string]time.Time),
	}
}

// Reserve increments the bucket if it is below limit (limit <= 0 means unlimited).
func (m *Memory) Reserve(_ context.Context, b domquota.Bucket, limit int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := b.ID()
	n := m.used[id]
	if limit > 0 && n >= limit {
		return n, false, nil
	}
	m.used[id] = n + 1
	return n + 1, true, nil
}

// Release returns one unit to the bucket.
func (m *Memory) Release(_ context.Context, b domquota.Bucket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := b.ID()
	if m.used[id] > 0 {
		m.used[id]--
	}
	return nil
}

// Used returns the bucket's counter.
func (m *Memory) Used(_ context.Context, b domquota.Bucket) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used[b.ID()], nil
}

// Open records now as the first admission unless one is recorded.
func (m *Memory) Open(_ context.Context, userID, plan string, now time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := userID + ":" + plan
	if t, ok := m.opened[k]; ok {
		return t, nil
	}
	t := time.Unix(now.Unix(), 0).UTC()
	m.opened[k] = t
	return t, nil
}

// OpenedAt returns the recorded first admission, if any.
func (m *Memory) OpenedAt(_ context.Context, userID, plan string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.opened[userID+":"+plan]
	return t, ok, nil
}
