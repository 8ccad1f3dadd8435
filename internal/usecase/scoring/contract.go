package scoring

import (
	"context"

	"github.com/kailas-cloud/emsal/internal/domain/decision"
	"github.com/kailas-cloud/emsal/internal/domain/fingerprint"
)

// Scorer judges how relevant a decision is to a case.
type Scorer interface {
	ScoreRelevance(ctx context.Context, caseText, decisionText string) (decision.Relevance, error)
}

// Cache stores relevance judgements by (case, decision) pair fingerprint.
type Cache interface {
	Get(ctx context.Context, fp fingerprint.Fingerprint) (decision.Relevance, bool)
	Put(ctx context.Context, fp fingerprint.Fingerprint, r decision.Relevance)
}
