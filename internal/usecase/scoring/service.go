// Package scoring attaches an AI relevance score to every search candidate.
package scoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/emsal/internal/domain/decision"
	"github.com/kailas-cloud/emsal/internal/domain/fingerprint"
	"github.com/kailas-cloud/emsal/internal/retry"
)

// Defaults.
const (
	DefaultConcurrency   = 5
	DefaultMaxCandidates = 50
)

// DefaultPolicy matches keyword extraction: one retry, 10s per attempt.
var DefaultPolicy = retry.Policy{
	MaxRetries:     1,
	BaseDelay:      250 * time.Millisecond,
	Multiplier:     2,
	AttemptTimeout: 10 * time.Second,
}

// Outcome is the result of scoring one candidate list.
type Outcome struct {
	// Scored holds hits and successes in candidate order.
	Scored []decision.Scored
	// Dropped lists decision ids whose scoring was exhausted.
	Dropped []string
	// Truncated counts candidates cut by the candidate cap before scoring.
	Truncated int
	CacheHits int
}

// Service scores candidates with bounded concurrency.
type Service struct {
	scorer        Scorer
	cache         Cache
	policy        retry.Policy
	concurrency   int64
	maxCandidates int
	logger        *zap.Logger
}

// New creates a scoring service.
func New(scorer Scorer, cache Cache, logger *zap.Logger) *Service {
	return &Service{
		scorer:        scorer,
		cache:         cache,
		policy:        DefaultPolicy,
		concurrency:   DefaultConcurrency,
		maxCandidates: DefaultMaxCandidates,
		logger:        logger,
	}
}

// WithConcurrency caps in-flight scoring calls. Non-positive keeps the default.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = int64(n)
	}
	return s
}

// WithMaxCandidates caps how many candidates are scored. Non-positive keeps the default.
func (s *Service) WithMaxCandidates(n int) *Service {
	if n > 0 {
		s.maxCandidates = n
	}
	return s
}

// WithRetry overrides the per-candidate retry policy.
func (s *Service) WithRetry(p retry.Policy) *Service {
	s.policy = p
	return s
}

type slot struct {
	scored decision.Scored
	ok     bool
	err    error
}

// Score scores candidates against caseText. It never fails as a whole:
// a candidate that cannot be scored is dropped and reported in Outcome.Dropped.
func (s *Service) Score(ctx context.Context, caseText string, candidates []decision.Candidate) Outcome {
	var out Outcome
	if len(candidates) > s.maxCandidates {
		out.Truncated = len(candidates) - s.maxCandidates
		candidates = candidates[:s.maxCandidates]
	}

	slots := make([]slot, len(candidates))
	fps := make([]fingerprint.Fingerprint, len(candidates))
	var misses []int
	for i, c := range candidates {
		fps[i] = fingerprint.Pair(caseText, c.RawContent)
		if r, ok := s.cache.Get(ctx, fps[i]); ok {
			slots[i] = slot{scored: decision.NewScored(c, r), ok: true}
			out.CacheHits++
			continue
		}
		misses = append(misses, i)
	}

	sem := semaphore.NewWeighted(s.concurrency)
	var wg sync.WaitGroup
	for n, i := range misses {
		if err := sem.Acquire(ctx, 1); err != nil {
			for _, j := range misses[n:] {
				slots[j].err = err
			}
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			slots[i] = s.scoreOne(ctx, caseText, candidates[i], fps[i])
		}(i)
	}
	wg.Wait()

	out.Scored = make([]decision.Scored, 0, len(candidates))
	for i, sl := range slots {
		if !sl.ok {
			out.Dropped = append(out.Dropped, candidates[i].DecisionID)
			s.logger.Warn("Dropping unscored decision",
				zap.String("decision_id", candidates[i].DecisionID), zap.Error(sl.err))
			continue
		}
		out.Scored = append(out.Scored, sl.scored)
	}
	return out
}

func (s *Service) scoreOne(
	ctx context.Context, caseText string, c decision.Candidate, fp fingerprint.Fingerprint,
) slot {
	r, attempts, err := retry.Do(ctx, s.policy, func(ctx context.Context) (decision.Relevance, error) {
		return s.scorer.ScoreRelevance(ctx, caseText, c.RawContent)
	})
	if err != nil {
		return slot{err: err}
	}
	if attempts > 1 {
		s.logger.Debug("Scoring recovered", zap.String("decision_id", c.DecisionID), zap.Int("attempts", attempts))
	}
	r.Score = decision.ClampScore(r.Score)
	if ctx.Err() == nil {
		s.cache.Put(ctx, fp, r)
	}
	return slot{scored: decision.NewScored(c, r), ok: true}
}
