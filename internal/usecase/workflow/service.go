// Package workflow runs one precedent analysis end to end:
// quota admission, keyword extraction, fan-out search, relevance scoring,
// ranking and optional document drafting.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/domain"
	domwf "github.com/kailas-cloud/emsal/internal/domain/workflow"
	"github.com/kailas-cloud/emsal/internal/logger"
	"github.com/kailas-cloud/emsal/internal/usecase/ranking"
)

const tracerName = "github.com/kailas-cloud/emsal/internal/usecase/workflow"

// Defaults.
const (
	DefaultDeadline   = 40 * time.Second
	DefaultMaxResults = 10
	DefaultMinScore   = 0
)

// Stage names used for timings, spans and metrics.
const (
	StageKeywords = "keywords"
	StageSearch   = "search"
	StageScoring  = "scoring"
	StageRanking  = "ranking"
	StageDocument = "document"
)

// Metrics groups the collectors a run reports to. Nil fields are skipped.
type Metrics struct {
	Runs   *prometheus.CounterVec   // labels: status
	Stages *prometheus.HistogramVec // labels: stage
}

// Service orchestrates analysis runs.
type Service struct {
	gate       Gate
	keywords   KeywordExtractor
	search     Searcher
	scoring    RelevanceScorer
	documents  DocumentDrafter
	deadline   time.Duration
	maxResults int
	minScore   int
	metrics    Metrics
	tracer     trace.Tracer
	logger     *zap.Logger
}

// New creates a workflow service.
func New(
	gate Gate,
	kw KeywordExtractor,
	searcher Searcher,
	scorer RelevanceScorer,
	documents DocumentDrafter,
	logger *zap.Logger,
) *Service {
	return &Service{
		gate:       gate,
		keywords:   kw,
		search:     searcher,
		scoring:    scorer,
		documents:  documents,
		deadline:   DefaultDeadline,
		maxResults: DefaultMaxResults,
		minScore:   DefaultMinScore,
		tracer:     otel.Tracer(tracerName),
		logger:     logger,
	}
}

// WithDeadline sets the per-run deadline. Non-positive keeps the default.
func (s *Service) WithDeadline(d time.Duration) *Service {
	if d > 0 {
		s.deadline = d
	}
	return s
}

// WithRanking sets the default result cap and the inclusive score threshold.
func (s *Service) WithRanking(maxResults, minScore int) *Service {
	if maxResults > 0 {
		s.maxResults = maxResults
	}
	s.minScore = minScore
	return s
}

// WithMetrics attaches Prometheus collectors.
func (s *Service) WithMetrics(m Metrics) *Service {
	s.metrics = m
	return s
}

// WithTracer overrides the tracer taken from the global provider.
func (s *Service) WithTracer(t trace.Tracer) *Service {
	s.tracer = t
	return s
}

// Run executes one analysis for req.
//
// Invalid input and quota rejection fail before any external call.
// Keyword extraction failure, total search failure and a deadline that
// leaves no scored decision fail the run and refund the quota charge.
// Everything else yields a Result whose Status and Degradation describe
// what went missing.
func (s *Service) Run(ctx context.Context, req domwf.Request) (domwf.Result, error) {
	start := time.Now()
	res := domwf.Result{RunID: uuid.NewString()}

	log := logger.ForRun(ctx, s.logger, res.RunID, req.UserID)
	ctx = logger.ContextWithLogger(ctx, log)

	ctx, span := s.tracer.Start(ctx, "workflow.Run", trace.WithAttributes(
		attribute.String("run.id", res.RunID),
		attribute.String("user.id", req.UserID),
	))
	defer span.End()

	if strings.TrimSpace(req.UserID) == "" {
		return res, s.fail(span, "invalid", fmt.Errorf("%w: user id is required", domain.ErrInvalidInput))
	}
	if err := s.keywords.Validate(req.CaseText); err != nil {
		return res, s.fail(span, "invalid", err)
	}

	ticket, err := s.gate.Admit(ctx, req.UserID)
	if err != nil {
		status := "error"
		if errors.Is(err, domain.ErrQuotaExceeded) {
			status = "rejected"
		}
		return res, s.fail(span, status, fmt.Errorf("admit: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	failRun := func(err error) (domwf.Result, error) {
		refunded := ticket.Fail(ctx, err)
		ledger := ticket.Ledger()
		res.Quota = &ledger
		res.Timings.Total = time.Since(start)
		log.Warn("Analysis run failed", zap.Bool("refunded", refunded), zap.Error(err))
		return res, s.fail(span, "failed", err)
	}

	// Keywords.
	stageCtx, end := s.stage(ctx, StageKeywords, &res.Timings.Keywords)
	kw, err := s.keywords.Extract(stageCtx, req.CaseText)
	end(err)
	if err != nil {
		return failRun(err)
	}
	res.Keywords = kw.Keywords
	res.Cache.KeywordsHit = kw.CacheHit

	// Search.
	stageCtx, end = s.stage(ctx, StageSearch, &res.Timings.Search)
	found, err := s.search.Search(stageCtx, kw.Keywords)
	end(err)
	if err != nil {
		return failRun(err)
	}
	res.Cache.SearchHit = found.CacheHit
	res.Degradation.FailedKeywords = found.FailedKeywords

	// Scoring.
	stageCtx, end = s.stage(ctx, StageScoring, &res.Timings.Scoring)
	scored := s.scoring.Score(stageCtx, req.CaseText, found.Candidates)
	end(nil)
	res.Cache.ScoreHits = scored.CacheHits
	res.Degradation.DroppedDecisions = scored.Dropped
	res.Degradation.TruncatedCandidates = scored.Truncated

	if ctx.Err() != nil {
		res.Degradation.DeadlineExceeded = true
		if len(scored.Scored) == 0 {
			return failRun(fmt.Errorf("%w: no decision scored before the run deadline: %w",
				domain.ErrDeadlineExceeded, ctx.Err()))
		}
	}

	// Ranking.
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}
	_, end = s.stage(ctx, StageRanking, &res.Timings.Ranking)
	res.Decisions = ranking.Rank(scored.Scored, maxResults, s.minScore)
	end(nil)

	// Document.
	if req.IncludeDocument && s.documents != nil {
		stageCtx, end = s.stage(ctx, StageDocument, &res.Timings.Document)
		res.Document = s.documents.Generate(stageCtx, req.CaseText, res.Decisions)
		end(nil)
	}

	// Degradation wins over an empty list: a run whose candidates all failed
	// scoring is partial, never no_results.
	switch {
	case !res.Degradation.Empty():
		res.Status = domwf.StatusPartial
	case len(res.Decisions) == 0:
		res.Status = domwf.StatusNoResults
	default:
		res.Status = domwf.StatusComplete
	}

	ticket.Complete()
	ledger := ticket.Ledger()
	res.Quota = &ledger
	res.Timings.Total = time.Since(start)

	span.SetAttributes(
		attribute.String("run.status", string(res.Status)),
		attribute.Int("run.decisions", len(res.Decisions)),
	)
	s.incRuns(string(res.Status))

	log.Info("Analysis run finished",
		zap.String("status", string(res.Status)),
		zap.Int("keywords", len(res.Keywords)),
		zap.Int("candidates", len(found.Candidates)),
		zap.Int("decisions", len(res.Decisions)),
		zap.Strings("failed_keywords", res.Degradation.FailedKeywords),
		zap.Int("dropped_decisions", len(res.Degradation.DroppedDecisions)),
		zap.Bool("deadline_exceeded", res.Degradation.DeadlineExceeded),
		zap.Duration("duration", res.Timings.Total),
	)
	return res, nil
}

// stage opens a span for name and returns a closer that records its duration into dst.
func (s *Service) stage(ctx context.Context, name string, dst *time.Duration) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "workflow."+name)
	started := time.Now()
	return ctx, func(err error) {
		*dst = time.Since(started)
		if s.metrics.Stages != nil {
			s.metrics.Stages.WithLabelValues(name).Observe(dst.Seconds())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (s *Service) fail(span trace.Span, status string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, status)
	s.incRuns(status)
	return err
}

func (s *Service) incRuns(status string) {
	if s.metrics.Runs != nil {
		s.metrics.Runs.WithLabelValues(status).Inc()
	}
}
