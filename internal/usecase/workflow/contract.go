package workflow

import (
	"context"

	"github.com/kailas-cloud/emsal/internal/domain/decision"
	domwf "github.com/kailas-cloud/emsal/internal/domain/workflow"
	"github.com/kailas-cloud/emsal/internal/usecase/keywords"
	"github.com/kailas-cloud/emsal/internal/usecase/quota"
	"github.com/kailas-cloud/emsal/internal/usecase/scoring"
	"github.com/kailas-cloud/emsal/internal/usecase/search"
)

// Gate admits runs against the user's quota.
type Gate interface {
	Admit(ctx context.Context, userID string) (*quota.Ticket, error)
}

// KeywordExtractor turns case text into search keywords.
type KeywordExtractor interface {
	Validate(text string) error
	Extract(ctx context.Context, text string) (keywords.Outcome, error)
}

// Searcher fans keywords out to decision retrieval.
type Searcher interface {
	Search(ctx context.Context, keywords []string) (search.Outcome, error)
}

// RelevanceScorer scores candidates against the case.
type RelevanceScorer interface {
	Score(ctx context.Context, caseText string, candidates []decision.Candidate) scoring.Outcome
}

// DocumentDrafter drafts a petition from ranked decisions.
type DocumentDrafter interface {
	Generate(ctx context.Context, caseText string, ranked []decision.Scored) *domwf.Document
}
