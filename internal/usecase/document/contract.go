package document

import (
	"context"

	"github.com/kailas-cloud/emsal/internal/domain/decision"
)

// Generator drafts a filing from a case and its supporting decisions.
type Generator interface {
	GenerateDocument(ctx context.Context, caseText string, decisions []decision.Scored) (string, error)
}
