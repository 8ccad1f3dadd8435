package search

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/domain/decision"
	"github.com/kailas-cloud/emsal/internal/domain/fingerprint"
	"github.com/kailas-cloud/emsal/internal/retry"
)

// mockRetriever answers per keyword and tracks concurrency.
type mockRetriever struct {
	mu       sync.Mutex
	hits     map[string][]decision.Hit
	errs     map[string]error
	calls    map[string]int
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newMockRetriever() *mockRetriever {
	return &mockRetriever{
		hits:  map[string][]decision.Hit{},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (m *mockRetriever) Search(ctx context.Context, keyword string) ([]decision.Hit, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls[keyword]++
	hits, err := m.hits[keyword], m.errs[keyword]
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	return hits, err
}

func (m *mockRetriever) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

type putRecord struct {
	fp  fingerprint.Fingerprint
	ttl time.Duration
}

type mapCache struct {
	mu   sync.Mutex
	data map[fingerprint.Fingerprint][]decision.Candidate
	puts []putRecord
}

func newMapCache() *mapCache {
	return &mapCache{data: map[fingerprint.Fingerprint][]decision.Candidate{}}
}

func (c *mapCache) Get(_ context.Context, fp fingerprint.Fingerprint) ([]decision.Candidate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[fp]
	return v, ok
}

func (c *mapCache) Put(ctx context.Context, fp fingerprint.Fingerprint, v []decision.Candidate) {
	c.PutWithTTL(ctx, fp, v, 0)
}

func (c *mapCache) PutWithTTL(_ context.Context, fp fingerprint.Fingerprint, v []decision.Candidate, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[fp] = v
	c.puts = append(c.puts, putRecord{fp: fp, ttl: ttl})
}

var fastPolicy = retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, Multiplier: 2}

func newTestService(r Retriever, c Cache) *Service {
	return New(r, c, zap.NewNop()).WithRetry(fastPolicy)
}

func hit(id string, rank int) decision.Hit {
	return decision.Hit{ID: id, Title: "Karar " + id, Content: "metin " + id, Rank: rank}
}
