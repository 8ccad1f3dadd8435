package keywords

import (
	"context"

	"github.com/kailas-cloud/emsal/internal/domain"
	"github.com/kailas-cloud/emsal/internal/domain/fingerprint"
)

// Extractor derives search keywords from free text.
type Extractor interface {
	ExtractKeywords(ctx context.Context, text string) (domain.Extraction, error)
}

// Cache stores extracted keywords by case text fingerprint.
type Cache interface {
	Get(ctx context.Context, fp fingerprint.Fingerprint) ([]string, bool)
	Put(ctx context.Context, fp fingerprint.Fingerprint, keywords []string)
}
