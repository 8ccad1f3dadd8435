package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kailas-cloud/emsal/internal/domain"
	"github.com/kailas-cloud/emsal/internal/domain/decision"
)

// ErrMalformedResponse marks a model answer that could not be parsed.
// It wraps domain.ErrUnavailable so callers retry it like any other upstream failure.
var ErrMalformedResponse = fmt.Errorf("malformed model response: %w", domain.ErrUnavailable)

var (
	scoreRe      = regexp.MustCompile(`-?\d+`)
	listMarkerRe = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)
)

// ParseKeywords accepts a JSON array, a {"keywords": [...]} object, or a
// comma/newline separated list. Bullets and surrounding quotes are stripped.
func ParseKeywords(raw string) []string {
	s := StripCodeFences(raw)

	var arr []string
	if json.Unmarshal([]byte(s), &arr) == nil {
		return clean(arr)
	}
	var obj struct {
		Keywords []string `json:"keywords"`
	}
	if json.Unmarshal([]byte(s), &obj) == nil && len(obj.Keywords) > 0 {
		return clean(obj.Keywords)
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == ';' })
	return clean(parts)
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		k = listMarkerRe.ReplaceAllString(strings.TrimSpace(k), "")
		k = strings.Trim(k, "\"'`“”")
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// ParseRelevance accepts a JSON object {"score", "explanation", "similarity"}
// or PUAN:/AÇIKLAMA:/BENZERLIK: lines. A missing score is ErrMalformedResponse.
func ParseRelevance(raw string) (decision.Relevance, error) {
	s := StripCodeFences(raw)

	var obj struct {
		Score       *json.Number `json:"score"`
		Explanation string       `json:"explanation"`
		Similarity  string       `json:"similarity"`
	}
	if json.Unmarshal([]byte(s), &obj) == nil && obj.Score != nil {
		f, err := obj.Score.Float64()
		if err != nil {
			return decision.Relevance{}, fmt.Errorf("score %q: %w", obj.Score.String(), ErrMalformedResponse)
		}
		return decision.Relevance{
			Score:       decision.ClampScore(int(f)),
			Explanation: strings.TrimSpace(obj.Explanation),
			Similarity:  strings.TrimSpace(obj.Similarity),
		}, nil
	}

	var r decision.Relevance
	found := false
	for _, line := range strings.Split(s, "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(strings.TrimLeft(val, "* "))
		switch normalizeLabel(key) {
		case "PUAN":
			m := scoreRe.FindString(val)
			if m == "" {
				continue
			}
			n, err := strconv.Atoi(m)
			if err != nil {
				continue
			}
			r.Score = decision.ClampScore(n)
			found = true
		case "AÇIKLAMA", "ACIKLAMA":
			r.Explanation = val
		case "BENZERLIK", "BENZERLİK":
			r.Similarity = val
		}
	}
	if !found {
		return decision.Relevance{}, fmt.Errorf("no score in %q: %w", Truncate(s, 80), ErrMalformedResponse)
	}
	return r, nil
}

func normalizeLabel(s string) string {
	s = strings.TrimSpace(strings.Trim(s, "*# "))
	return strings.ToUpper(s)
}

// StripCodeFences removes a surrounding ``` or ```json fence.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
	}
	return s
}

// IsMalformed reports whether err came from an unparsable model answer.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}
