package fpcache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store guarded by a mutex.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewMemory creates an empty in-memory store using the wall clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates an in-memory store that reads time from now.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]*Entry),
		now:     now,
	}
}

// Get returns a live entry's value and counts the hit. Expired entries are evicted.
// Expiry is never extended by a hit.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if e.Expired(m.now()) {
		delete(m.entries, key)
		return nil, false
	}
	e.HitCount++
	return e.Value, true
}

// Put replaces any existing entry under key. Non-positive TTLs are ignored.
func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := m.now()
	buf := make([]byte, len(value))
	copy(buf, value)

	m.mu.Lock()
	m.entries[key] = &Entry{
		Key:       key,
		Value:     buf,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	m.mu.Unlock()
}

// Sweep evicts every expired entry.
func (m *Memory) Sweep(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Invalidate removes key regardless of expiry.
func (m *Memory) Invalidate(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Lookup returns a copy of the entry under key without counting a hit or evicting.
func (m *Memory) Lookup(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
