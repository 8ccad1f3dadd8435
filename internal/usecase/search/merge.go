package search

import (
	"slices"

	"github.com/kailas-cloud/emsal/internal/domain/decision"
)

// merge flattens per-keyword hits into one candidate list.
// Keywords are visited in submission order and hits in native rank order;
// a decision seen earlier wins over later duplicates. Hits without an ID are dropped.
func merge(keywords []string, perKeyword [][]decision.Hit) []decision.Candidate {
	total := 0
	for _, hits := range perKeyword {
		total += len(hits)
	}

	seen := make(map[string]struct{}, total)
	out := make([]decision.Candidate, 0, total)

	for i, kw := range keywords {
		hits := slices.Clone(perKeyword[i])
		slices.SortStableFunc(hits, func(a, b decision.Hit) int {
			return a.Rank - b.Rank
		})

		for _, h := range hits {
			if h.ID == "" {
				continue
			}
			if _, dup := seen[h.ID]; dup {
				continue
			}
			seen[h.ID] = struct{}{}

			c := decision.NewCandidate(h, kw)
			c.SearchRank = len(out) + 1
			out = append(out, c)
		}
	}
	return out
}
