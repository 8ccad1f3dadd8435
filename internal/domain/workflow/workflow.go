// Package workflow holds the request and result types of one analysis run.
package workflow

import (
	"time"

	"github.com/kailas-cloud/emsal/internal/domain/decision"
	"github.com/kailas-cloud/emsal/internal/domain/quota"
)

// Status summarizes how complete a run's output is.
type Status string

// Run statuses.
const (
	StatusComplete  Status = "complete"
	StatusPartial   Status = "partial"
	StatusNoResults Status = "no_results"
)

// Request is a single analysis request.
type Request struct {
	UserID   string
	CaseText string
	// MaxResults caps the ranked list; <= 0 uses the service default.
	MaxResults      int
	IncludeDocument bool
}

// Document is a generated draft filing.
type Document struct {
	Text string `json:"text"`
	// Fallback is set when generation failed and the static template was used.
	Fallback bool `json:"fallback"`
}

// Degradation lists what went missing without failing the run.
type Degradation struct {
	FailedKeywords      []string `json:"failed_keywords,omitempty"`
	DroppedDecisions    []string `json:"dropped_decisions,omitempty"`
	DeadlineExceeded    bool     `json:"deadline_exceeded"`
	TruncatedCandidates int      `json:"truncated_candidates,omitempty"`
}

// Empty reports whether nothing was degraded.
func (d Degradation) Empty() bool {
	return len(d.FailedKeywords) == 0 && len(d.DroppedDecisions) == 0 && !d.DeadlineExceeded
}

// CacheReport records which stages were served from cache.
type CacheReport struct {
	KeywordsHit bool `json:"keywords_hit"`
	SearchHit   bool `json:"search_hit"`
	ScoreHits   int  `json:"score_hits"`
}

// Timings holds per-stage wall time.
type Timings struct {
	Keywords time.Duration `json:"keywords_ns"`
	Search   time.Duration `json:"search_ns"`
	Scoring  time.Duration `json:"scoring_ns"`
	Ranking  time.Duration `json:"ranking_ns"`
	Document time.Duration `json:"document_ns"`
	Total    time.Duration `json:"total_ns"`
}

// Result is the outcome of one analysis run. It is not persisted.
type Result struct {
	RunID       string            `json:"run_id"`
	Keywords    []string          `json:"keywords"`
	Decisions   []decision.Scored `json:"decisions"`
	Document    *Document         `json:"document,omitempty"`
	Status      Status            `json:"status"`
	Degradation Degradation       `json:"degradation"`
	Cache       CacheReport       `json:"cache"`
	Timings     Timings           `json:"timings"`
	Quota       *quota.Ledger     `json:"quota,omitempty"`
}
