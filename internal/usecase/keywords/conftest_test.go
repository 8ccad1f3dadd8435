package keywords

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/domain"
	"github.com/kailas-cloud/emsal/internal/domain/fingerprint"
	"github.com/kailas-cloud/emsal/internal/retry"
)

type mockExtractor struct {
	calls   atomic.Int32
	results []domain.Extraction
	errs    []error
	delay   time.Duration
}

func (m *mockExtractor) ExtractKeywords(ctx context.Context, _ string) (domain.Extraction, error) {
	n := int(m.calls.Add(1)) - 1
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.Extraction{}, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if n < len(m.errs) && m.errs[n] != nil {
		return domain.Extraction{}, m.errs[n]
	}
	if n < len(m.results) {
		return m.results[n], nil
	}
	if len(m.results) > 0 {
		return m.results[len(m.results)-1], nil
	}
	return domain.Extraction{}, nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[fingerprint.Fingerprint][]string
	puts int
}

func newMapCache() *mapCache {
	return &mapCache{data: map[fingerprint.Fingerprint][]string{}}
}

func (c *mapCache) Get(_ context.Context, fp fingerprint.Fingerprint) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[fp]
	return v, ok
}

func (c *mapCache) Put(_ context.Context, fp fingerprint.Fingerprint, kws []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[fp] = kws
	c.puts++
}

var fastPolicy = retry.Policy{MaxRetries: 1, AttemptTimeout: time.Second}

func newTestService(ext Extractor, cache Cache) *Service {
	return New(ext, cache, zap.NewNop()).WithRetry(fastPolicy)
}
