package search

import (
	"context"
	"time"

	"github.com/kailas-cloud/emsal/internal/domain/decision"
	"github.com/kailas-cloud/emsal/internal/domain/fingerprint"
)

// Retriever finds court decisions for a single keyword.
type Retriever interface {
	Search(ctx context.Context, keyword string) ([]decision.Hit, error)
}

// Cache stores merged candidate lists by keyword set fingerprint.
type Cache interface {
	Get(ctx context.Context, fp fingerprint.Fingerprint) ([]decision.Candidate, bool)
	Put(ctx context.Context, fp fingerprint.Fingerprint, candidates []decision.Candidate)
	PutWithTTL(ctx context.Context, fp fingerprint.Fingerprint, candidates []decision.Candidate, ttl time.Duration)
}
