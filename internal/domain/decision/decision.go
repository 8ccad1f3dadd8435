// Package decision holds the court decision types that flow through the analysis pipeline.
package decision

// Hit is a single decision returned by the retrieval service for one keyword.
type Hit struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Court   string `json:"court"`
	Date    string `json:"date"`
	Content string `json:"content"`
	// Rank is the 1-based position the retrieval service reported.
	Rank int `json:"rank"`
}

// Candidate is a deduplicated decision awaiting relevance scoring.
type Candidate struct {
	DecisionID         string `json:"decision_id"`
	Title              string `json:"title"`
	Court              string `json:"court"`
	Date               string `json:"date"`
	RawContent         string `json:"raw_content"`
	OriginatingKeyword string `json:"originating_keyword"`
	// SearchRank is the 1-based position in the merged list across all keywords.
	SearchRank int `json:"search_rank"`
	// NativeRank is the rank the retrieval service gave for OriginatingKeyword.
	NativeRank int `json:"native_rank"`
}

// NewCandidate builds a candidate from a hit found by keyword.
func NewCandidate(h Hit, keyword string) Candidate {
	return Candidate{
		DecisionID:         h.ID,
		Title:              h.Title,
		Court:              h.Court,
		Date:               h.Date,
		RawContent:         h.Content,
		OriginatingKeyword: keyword,
		NativeRank:         h.Rank,
	}
}

// Relevance is the inference service's judgement of one (case, decision) pair.
type Relevance struct {
	Score       int    `json:"score"`
	Explanation string `json:"explanation"`
	Similarity  string `json:"similarity"`
}

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// ClampScore forces s into [MinScore, MaxScore].
func ClampScore(s int) int {
	return max(MinScore, min(MaxScore, s))
}

// Scored is a candidate with its relevance attached.
type Scored struct {
	Candidate
	AIScore         int    `json:"ai_score"`
	Explanation     string `json:"explanation"`
	SimilarityLabel string `json:"similarity_label"`
}

// NewScored combines a candidate with its relevance, clamping the score.
func NewScored(c Candidate, r Relevance) Scored {
	return Scored{
		Candidate:       c,
		AIScore:         ClampScore(r.Score),
		Explanation:     r.Explanation,
		SimilarityLabel: r.Similarity,
	}
}
