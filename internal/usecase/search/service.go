// Package search fans a keyword list out to the decision retrieval service
// and merges the answers into one deduplicated candidate list.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/emsal/internal/domain"
	"github.com/kailas-cloud/emsal/internal/domain/decision"
	"github.com/kailas-cloud/emsal/internal/domain/fingerprint"
	"github.com/kailas-cloud/emsal/internal/retry"
)

// Defaults.
const (
	DefaultConcurrency = 8
	DefaultPartialTTL  = time.Hour
)

// DefaultPolicy retries a keyword twice with 500ms, 1s backoff.
var DefaultPolicy = retry.Policy{
	MaxRetries:     2,
	BaseDelay:      500 * time.Millisecond,
	Multiplier:     2,
	MaxDelay:       5 * time.Second,
	AttemptTimeout: 15 * time.Second,
}

// Outcome is the merged result of one fan-out.
type Outcome struct {
	Candidates     []decision.Candidate
	FailedKeywords []string
	CacheHit       bool
}

// Service runs bounded parallel keyword searches.
type Service struct {
	retriever   Retriever
	cache       Cache
	policy      retry.Policy
	concurrency int64
	partialTTL  time.Duration
	logger      *zap.Logger
}

// New creates a search service.
func New(retriever Retriever, cache Cache, logger *zap.Logger) *Service {
	return &Service{
		retriever:   retriever,
		cache:       cache,
		policy:      DefaultPolicy,
		concurrency: DefaultConcurrency,
		partialTTL:  DefaultPartialTTL,
		logger:      logger,
	}
}

// WithConcurrency caps in-flight retrieval calls. Non-positive keeps the default.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = int64(n)
	}
	return s
}

// WithRetry overrides the per-keyword retry policy.
func (s *Service) WithRetry(p retry.Policy) *Service {
	s.policy = p
	return s
}

// WithPartialTTL sets how long a list with failed keywords stays cached. Zero disables caching it.
func (s *Service) WithPartialTTL(ttl time.Duration) *Service {
	s.partialTTL = ttl
	return s
}

type keywordResult struct {
	hits []decision.Hit
	err  error
}

// Search returns merged candidates for keywords.
// A keyword whose retries are exhausted contributes nothing and is listed in FailedKeywords.
// When every keyword fails the error wraps domain.ErrSearchUnavailable, or
// domain.ErrDeadlineExceeded when ctx ended first.
func (s *Service) Search(ctx context.Context, keywords []string) (Outcome, error) {
	keywords = uniqueKeywords(keywords)
	if len(keywords) == 0 {
		return Outcome{}, fmt.Errorf("%w: no keywords to search", domain.ErrInvalidInput)
	}

	fp := fingerprint.KeywordSet(keywords)
	if cands, ok := s.cache.Get(ctx, fp); ok {
		return Outcome{Candidates: cands, CacheHit: true}, nil
	}

	results := s.fanOut(ctx, keywords)

	var failed []string
	var errs []error
	perKeyword := make([][]decision.Hit, len(keywords))
	for i, r := range results {
		if r.err != nil {
			failed = append(failed, keywords[i])
			errs = append(errs, fmt.Errorf("keyword %q: %w", keywords[i], r.err))
			s.logger.Warn("Keyword search failed", zap.String("keyword", keywords[i]), zap.Error(r.err))
			continue
		}
		perKeyword[i] = r.hits
	}

	if len(failed) == len(keywords) {
		if ctx.Err() != nil {
			return Outcome{FailedKeywords: failed}, fmt.Errorf("%w: %w: all %d keyword searches failed",
				domain.ErrDeadlineExceeded, ctx.Err(), len(keywords))
		}
		return Outcome{FailedKeywords: failed}, fmt.Errorf("%w: all %d keyword searches failed: %w",
			domain.ErrSearchUnavailable, len(keywords), errors.Join(errs...))
	}

	cands := merge(keywords, perKeyword)

	switch {
	case ctx.Err() != nil:
		// Cancelled runs are never cached.
	case len(failed) == 0:
		s.cache.Put(ctx, fp, cands)
	case s.partialTTL > 0:
		s.cache.PutWithTTL(ctx, fp, cands, s.partialTTL)
	}

	return Outcome{Candidates: cands, FailedKeywords: failed}, nil
}

// fanOut searches every keyword under the concurrency bound.
// Results are buffered by keyword index so the merge order does not depend on timing.
func (s *Service) fanOut(ctx context.Context, keywords []string) []keywordResult {
	results := make([]keywordResult, len(keywords))
	sem := semaphore.NewWeighted(s.concurrency)
	var wg sync.WaitGroup

	for i, kw := range keywords {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(keywords); j++ {
				results[j].err = err
			}
			break
		}
		wg.Add(1)
		go func(i int, kw string) {
			defer wg.Done()
			defer sem.Release(1)

			hits, attempts, err := retry.Do(ctx, s.policy, func(ctx context.Context) ([]decision.Hit, error) {
				return s.retriever.Search(ctx, kw)
			})
			if attempts > 1 && err == nil {
				s.logger.Debug("Keyword search recovered", zap.String("keyword", kw), zap.Int("attempts", attempts))
			}
			results[i] = keywordResult{hits: hits, err: err}
		}(i, kw)
	}

	wg.Wait()
	return results
}

func uniqueKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		c := fingerprint.Canonical(k)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, k)
	}
	return out
}
