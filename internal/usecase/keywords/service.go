// Package keywords turns a case description into a bounded list of search keywords.
package keywords

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/emsal/internal/domain"
	"github.com/kailas-cloud/emsal/internal/domain/fingerprint"
	"github.com/kailas-cloud/emsal/internal/retry"
)

// Defaults.
const (
	DefaultMaxKeywords  = 10
	DefaultMaxCaseChars = 10000
)

// DefaultPolicy is one retry on transient failure with a 10s attempt timeout.
var DefaultPolicy = retry.Policy{
	MaxRetries:     1,
	BaseDelay:      250 * time.Millisecond,
	Multiplier:     2,
	AttemptTimeout: 10 * time.Second,
}

// Outcome is the result of one extraction.
type Outcome struct {
	Keywords []string
	CacheHit bool
}

// Service extracts keywords with caching and request collapsing.
type Service struct {
	extractor    Extractor
	cache        Cache
	policy       retry.Policy
	maxKeywords  int
	maxCaseChars int
	group        singleflight.Group
	logger       *zap.Logger
}

// New creates a keyword service.
func New(extractor Extractor, cache Cache, logger *zap.Logger) *Service {
	return &Service{
		extractor:    extractor,
		cache:        cache,
		policy:       DefaultPolicy,
		maxKeywords:  DefaultMaxKeywords,
		maxCaseChars: DefaultMaxCaseChars,
		logger:       logger,
	}
}

// WithLimits overrides keyword and input length caps. Non-positive values keep defaults.
func (s *Service) WithLimits(maxKeywords, maxCaseChars int) *Service {
	if maxKeywords > 0 {
		s.maxKeywords = maxKeywords
	}
	if maxCaseChars > 0 {
		s.maxCaseChars = maxCaseChars
	}
	return s
}

// WithRetry overrides the retry policy.
func (s *Service) WithRetry(p retry.Policy) *Service {
	s.policy = p
	return s
}

// Validate checks case text against the input policy without calling out.
func (s *Service) Validate(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: %w: case text is empty",
			domain.ErrKeywordExtractionFailed, domain.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(text); n > s.maxCaseChars {
		return fmt.Errorf("%w: %w: case text has %d characters, limit is %d",
			domain.ErrKeywordExtractionFailed, domain.ErrInvalidInput, n, s.maxCaseChars)
	}
	return nil
}

// Extract returns keywords for text. Every failure wraps domain.ErrKeywordExtractionFailed.
func (s *Service) Extract(ctx context.Context, text string) (Outcome, error) {
	if err := s.Validate(text); err != nil {
		return Outcome{}, err
	}
	text = strings.TrimSpace(text)

	fp := fingerprint.CaseText(text)
	if kws, ok := s.cache.Get(ctx, fp); ok && len(kws) > 0 {
		return Outcome{Keywords: kws, CacheHit: true}, nil
	}

	// The flight outlives any single caller: one caller giving up must not
	// fail the others collapsed onto it.
	ch := s.group.DoChan(fp.String(), func() (any, error) {
		fctx, cancel := s.flightContext(ctx)
		defer cancel()
		return s.extract(fctx, fp, text)
	})

	select {
	case <-ctx.Done():
		return Outcome{}, fmt.Errorf("%w: %w: %w",
			domain.ErrKeywordExtractionFailed, domain.ErrDeadlineExceeded, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Outcome{}, res.Err
		}
		kws, _ := res.Val.([]string)
		return Outcome{Keywords: kws}, nil
	}
}

func (s *Service) flightContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if budget := s.policy.Budget(); budget > 0 {
		return context.WithTimeout(detached, budget)
	}
	return context.WithCancel(detached)
}

func (s *Service) extract(ctx context.Context, fp fingerprint.Fingerprint, text string) ([]string, error) {
	ext, attempts, err := retry.Do(ctx, s.policy, func(ctx context.Context) (domain.Extraction, error) {
		return s.extractor.ExtractKeywords(ctx, text)
	})
	if err != nil {
		s.logger.Warn("Keyword extraction failed",
			zap.String("fingerprint", fp.String()),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w: %w", domain.ErrKeywordExtractionFailed, domain.ErrDeadlineExceeded, err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrKeywordExtractionFailed, err)
	}

	kws := Normalize(ext.Keywords, s.maxKeywords)
	if len(kws) == 0 {
		return nil, fmt.Errorf("%w: inference returned no usable keywords", domain.ErrKeywordExtractionFailed)
	}

	s.logger.Debug("Keywords extracted",
		zap.String("fingerprint", fp.String()),
		zap.Strings("keywords", kws),
		zap.Float64("confidence", ext.Confidence),
		zap.Int("attempts", attempts),
	)

	s.cache.Put(ctx, fp, kws)
	return kws, nil
}

// Normalize trims keywords, drops empties and canonical duplicates keeping the
// first occurrence, and caps the result at limit.
func Normalize(raw []string, limit int) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, min(len(raw), limit))
	for _, k := range raw {
		k = strings.Join(strings.Fields(k), " ")
		c := fingerprint.Canonical(k)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, k)
		if len(out) == limit {
			break
		}
	}
	return out
}
