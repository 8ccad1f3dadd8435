// Package fingerprint derives deterministic cache keys from pipeline inputs.
//
// Every input is canonicalized before hashing: Unicode NFC, lower casing with
// both dotted and dotless capital I folded to i, whitespace collapsed to single
// spaces and trimmed. Two inputs share a fingerprint only when their canonical
// forms are byte-identical.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Fingerprint is a hex-encoded SHA-256 digest over a canonical input.
type Fingerprint string

// Kind prefixes keep fingerprints of different input shapes apart.
const (
	kindCase     = "case:"
	kindKeywords = "keywords:"
	kindPair     = "pair:"

	keywordSep = "\x1f"
	pairSep    = "\x1e"
)

// String returns the hex digest.
func (f Fingerprint) String() string { return string(f) }

// IsZero reports whether the fingerprint is unset.
func (f Fingerprint) IsZero() bool { return f == "" }

// capitalI folds both capital I forms to i. Turkish casing would send ASCII I
// to dotless ı and split Latin text on case alone.
var capitalI = strings.NewReplacer("İ", "i", "I", "i")

// Canonical returns the normalized form of text used for hashing.
// A fresh caser is created per call: cases.Caser is not safe for concurrent use.
func Canonical(text string) string {
	s := norm.NFC.String(text)
	s = capitalI.Replace(s)
	s = cases.Lower(language.Und).String(s)
	return strings.Join(strings.Fields(s), " ")
}

// CaseText fingerprints a free-text case description.
func CaseText(text string) Fingerprint {
	return digest(kindCase + Canonical(text))
}

// KeywordSet fingerprints a keyword list as an unordered set.
// Order, duplicates, case and surrounding whitespace do not affect the result.
func KeywordSet(keywords []string) Fingerprint {
	return digest(kindKeywords + strings.Join(CanonicalSet(keywords), keywordSep))
}

// Pair fingerprints a (case text, decision content) pair.
func Pair(caseText, decisionText string) Fingerprint {
	return digest(kindPair + Canonical(caseText) + pairSep + Canonical(decisionText))
}

// CanonicalSet returns the sorted, deduplicated canonical forms of keywords, skipping empties.
func CanonicalSet(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		c := Canonical(k)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func digest(s string) Fingerprint {
	h := sha256.Sum256([]byte(s))
	return Fingerprint(hex.EncodeToString(h[:]))
}
