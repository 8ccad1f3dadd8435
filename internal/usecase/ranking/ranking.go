// Package ranking orders scored decisions for presentation.
package ranking

import (
	"cmp"
	"slices"

	"github.com/kailas-cloud/emsal/internal/domain/decision"
)

// Rank filters scored by minScore (inclusive), sorts by score descending,
// then search rank ascending, then decision id ascending, and keeps the first
// maxResults. maxResults <= 0 keeps everything. The input is not modified.
func Rank(scored []decision.Scored, maxResults, minScore int) []decision.Scored {
	out := make([]decision.Scored, 0, len(scored))
	for _, s := range scored {
		if s.AIScore >= minScore {
			out = append(out, s)
		}
	}

	slices.SortFunc(out, func(a, b decision.Scored) int {
		if c := cmp.Compare(b.AIScore, a.AIScore); c != 0 {
			return c
		}
		if c := cmp.Compare(a.SearchRank, b.SearchRank); c != 0 {
			return c
		}
		return cmp.Compare(a.DecisionID, b.DecisionID)
	})

	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}
