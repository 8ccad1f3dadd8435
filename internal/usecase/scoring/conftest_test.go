package scoring

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

// mockScorer scores by decision text; errs forces failures per text.
type mockScorer struct {
	mu       sync.Mutex
	scores   map[string]decision.Relevance
	errs     map[string]error
	calls    int
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newMockScorer() *mockScorer {
	return &mockScorer{scores: map[string]decision.Relevance{}, errs: map[string]error{}}
}

func (m *mockScorer) ScoreRelevance(ctx context.Context, _ string, text string) (decision.Relevance, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls++
	r, err := m.scores[text], m.errs[text]
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return decision.Relevance{}, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	return r, err
}

func (m *mockScorer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mapCache struct {
	mu   sync.Mutex
	data map[fingerprint.Fingerprint]decision.Relevance
}

func newMapCache() *mapCache {
	return &mapCache{data: map[fingerprint.Fingerprint]decision.Relevance{}}
}

func (c *mapCache) Get(_ context.Context, fp fingerprint.Fingerprint) (decision.Relevance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[fp]
	return r, ok
}

func (c *mapCache) Put(_ context.Context, fp fingerprint.Fingerprint, r decision.Relevance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[fp] = r
}

var fastPolicy = retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, AttemptTimeout: time.Second}

func newTestService(s Scorer, c Cache) *Service {
	return New(s, c, zap.NewNop()).WithRetry(fastPolicy)
}

func candidate(id string, rank int) decision.Candidate {
	return decision.Candidate{DecisionID: id, RawContent: "metin " + id, SearchRank: rank}
}
