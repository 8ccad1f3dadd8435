package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/domain"
	"github.com/kailas-cloud/emsal/internal/domain/decision"
	domquota "github.com/kailas-cloud/emsal/internal/domain/quota"
	"github.com/kailas-cloud/emsal/internal/repository/fpcache"
	quotastore "github.com/kailas-cloud/emsal/internal/repository/quota"
	"github.com/kailas-cloud/emsal/internal/retry"
	"github.com/kailas-cloud/emsal/internal/usecase/document"
	"github.com/kailas-cloud/emsal/internal/usecase/keywords"
	"github.com/kailas-cloud/emsal/internal/usecase/quota"
	"github.com/kailas-cloud/emsal/internal/usecase/scoring"
	"github.com/kailas-cloud/emsal/internal/usecase/search"
)

type mockExtractor struct {
	calls    atomic.Int32
	keywords []string
	err      error
}

func (m *mockExtractor) ExtractKeywords(_ context.Context, _ string) (domain.Extraction, error) {
	m.calls.Add(1)
	if m.err != nil {
		return domain.Extraction{}, m.err
	}
	return domain.Extraction{Keywords: m.keywords, Confidence: 0.9}, nil
}

type mockRetriever struct {
	calls atomic.Int32
	hits  map[string][]decision.Hit
	err   error
}

func (m *mockRetriever) Search(_ context.Context, keyword string) ([]decision.Hit, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.hits[keyword], nil
}

type mockScorer struct {
	mu     sync.Mutex
	calls  int
	scores map[string]int
	fail   map[string]bool
	delay  time.Duration
}

func (m *mockScorer) ScoreRelevance(ctx context.Context, _ string, text string) (decision.Relevance, error) {
	m.mu.Lock()
	m.calls++
	score, fail := m.scores[text], m.fail[text]
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return decision.Relevance{}, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if fail {
		return decision.Relevance{}, domain.ErrInvalidInput
	}
	return decision.Relevance{Score: score, Explanation: "benzer olay", Similarity: "teslim"}, nil
}

func (m *mockScorer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockGenerator struct {
	calls atomic.Int32
	text  string
	err   error
}

func (m *mockGenerator) GenerateDocument(_ context.Context, _ string, _ []decision.Scored) (string, error) {
	m.calls.Add(1)
	return m.text, m.err
}

var fastPolicy = retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, Multiplier: 2}

type harness struct {
	svc       *Service
	gate      *quota.Gate
	extractor *mockExtractor
	retriever *mockRetriever
	scorer    *mockScorer
	generator *mockGenerator
}

func (h *harness) externalCalls() int {
	return int(h.extractor.calls.Load()) + int(h.retriever.calls.Load()) +
		h.scorer.callCount() + int(h.generator.calls.Load())
}

func (h *harness) used(t *testing.T, userID string) int64 {
	t.Helper()
	l, err := h.gate.Ledger(context.Background(), userID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	return l.Used
}

// newHarness wires real services over in-memory caches and ledger with
// mocked external clients. User "limited" is on a one-search plan.
func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zap.NewNop()

	plans, err := quota.NewStaticPlans([]domquota.Plan{
		{Name: "pro", Limit: 100, Window: domquota.WindowMonth},
		{Name: "single", Limit: 1, Window: domquota.WindowDay},
	}, map[string]string{"limited": "single"}, "pro")
	if err != nil {
		t.Fatal(err)
	}
	gate := quota.NewGate(plans, quotastore.NewMemory(), nil, log)

	mem := fpcache.NewMemory()
	kwTier := fpcache.NewTier[[]string](fpcache.TierKeywords, mem, time.Hour, nil, log)
	searchTier := fpcache.NewTier[[]decision.Candidate](fpcache.TierSearch, mem, time.Hour, nil, log)
	scoreTier := fpcache.NewTier[decision.Relevance](fpcache.TierScores, mem, time.Hour, nil, log)

	h := &harness{
		gate:      gate,
		extractor: &mockExtractor{},
		retriever: &mockRetriever{hits: map[string][]decision.Hit{}},
		scorer:    &mockScorer{scores: map[string]int{}, fail: map[string]bool{}},
		generator: &mockGenerator{text: "DİLEKÇE"},
	}

	h.svc = New(
		gate,
		keywords.New(h.extractor, kwTier, log).WithRetry(fastPolicy),
		search.New(h.retriever, searchTier, log).WithRetry(fastPolicy),
		scoring.New(h.scorer, scoreTier, log).WithRetry(fastPolicy),
		document.New(h.generator, log).WithRetry(fastPolicy),
		log,
	).WithRanking(20, 0)
	return h
}

func hit(id string, rank int) decision.Hit {
	return decision.Hit{ID: id, Title: "Karar " + id, Court: "3. HD", Content: "karar metni " + id, Rank: rank}
}

// seedTwelveHits sets up 3 keywords returning 12 hits that merge into 10 unique decisions.
func seedTwelveHits(h *harness) {
	h.extractor.keywords = []string{"teslim gecikmesi", "sözleşme ihlali", "tazminat"}
	h.retriever.hits["teslim gecikmesi"] = []decision.Hit{hit("d1", 1), hit("d2", 2), hit("d3", 3), hit("d4", 4)}
	h.retriever.hits["sözleşme ihlali"] = []decision.Hit{hit("d5", 1), hit("d2", 2), hit("d6", 3), hit("d7", 4)}
	h.retriever.hits["tazminat"] = []decision.Hit{hit("d8", 1), hit("d9", 2), hit("d5", 3), hit("d10", 4)}
	for i, id := range []string{"d1", "d2", "d3", "d4", "d5", "d6", "d7", "d8", "d9", "d10"} {
		h.scorer.scores["karar metni "+id] = 50 + i*5
	}
}
