// Package document drafts a petition from the top ranked decisions.
package document

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/emsal/internal/domain/decision"
	"github.com/kailas-cloud/emsal/internal/domain/workflow"
	"github.com/kailas-cloud/emsal/internal/retry"
)

// Defaults.
const (
	DefaultTopDecisions = 3
	fallbackCaseChars   = 500
)

// DefaultPolicy gives generation one retry and a longer attempt window than scoring.
var DefaultPolicy = retry.Policy{
	MaxRetries:     1,
	BaseDelay:      250 * time.Millisecond,
	Multiplier:     2,
	AttemptTimeout: 20 * time.Second,
}

// Service produces petition drafts.
type Service struct {
	generator Generator
	policy    retry.Policy
	top       int
	logger    *zap.Logger
}

// New creates a document service. A nil generator always yields the fallback template.
func New(generator Generator, logger *zap.Logger) *Service {
	return &Service{
		generator: generator,
		policy:    DefaultPolicy,
		top:       DefaultTopDecisions,
		logger:    logger,
	}
}

// WithRetry overrides the retry policy.
func (s *Service) WithRetry(p retry.Policy) *Service {
	s.policy = p
	return s
}

// WithTopDecisions sets how many ranked decisions feed the draft. Non-positive keeps the default.
func (s *Service) WithTopDecisions(n int) *Service {
	if n > 0 {
		s.top = n
	}
	return s
}

// Generate drafts a petition from the leading ranked decisions.
// It always returns a document: generation failures fall back to a static template.
func (s *Service) Generate(ctx context.Context, caseText string, ranked []decision.Scored) *workflow.Document {
	top := ranked[:min(len(ranked), s.top)]

	if s.generator != nil {
		text, attempts, err := retry.Do(ctx, s.policy, func(ctx context.Context) (string, error) {
			return s.generator.GenerateDocument(ctx, caseText, top)
		})
		text = strings.TrimSpace(text)
		if err == nil && text != "" {
			return &workflow.Document{Text: text}
		}
		s.logger.Warn("Document generation failed, using fallback template",
			zap.Int("attempts", attempts), zap.Error(err))
	}

	return &workflow.Document{Text: Fallback(caseText, top), Fallback: true}
}

// Fallback renders the static petition template.
func Fallback(caseText string, decisions []decision.Scored) string {
	var refs strings.Builder
	for i, d := range decisions {
		ref := d.DecisionID
		if ref == "" {
			ref = "Bilinmeyen"
		}
		fmt.Fprintf(&refs, "%d. %s sayılı karar\n", i+1, ref)
	}
	if len(decisions) == 0 {
		refs.WriteString("-\n")
	}

	excerpt := strings.TrimSpace(caseText)
	if r := []rune(excerpt); len(r) > fallbackCaseChars {
		excerpt = string(r[:fallbackCaseChars]) + "..."
	}

	var b strings.Builder
	b.WriteString("DAVA DİLEKÇESİ\n\n")
	b.WriteString("Sayın Hakim,\n\n")
	b.WriteString("Aşağıda belirtilen olaylar nedeniyle tarafınıza başvurmaktayım:\n\n")
	b.WriteString("OLAY:\n")
	b.WriteString(excerpt)
	b.WriteString("\n\nHUKUKİ DAYANAK:\nİlgili Yargıtay kararları:\n")
	b.WriteString(refs.String())
	b.WriteString("\nBu nedenlerle;\n")
	b.WriteString("1. Davanın kabulü,\n")
	b.WriteString("2. Tazminatın takdiri,\n")
	b.WriteString("3. Yargılama giderlerinin karşı taraftan alınması,\n\n")
	b.WriteString("Talep ederim.\n\n")
	b.WriteString("[Tarih ve İmza]\n\n")
	b.WriteString("NOT: Bu şablon otomatik oluşturulmuştur. Hukuki inceleme yaptırınız.")
	return b.String()
}
