package repeat

import pstrings "auditgov/pkg/platform/strings"

// Scorer returns a normalized similarity in [0,1] for two titles.
type Scorer interface {
	Score(a, b string) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(a, b string) float64

func (f ScorerFunc) Score(a, b string) float64 { return f(a, b) }

// TrigramScorer mirrors PostgreSQL pg_trgm similarity(): words are
// lower-cased, padded with two leading blanks and one trailing blank, split
// into three-rune windows, and compared as sets (shared / union).
type TrigramScorer struct{}

func (TrigramScorer) Score(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func trigrams(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range pstrings.Words(s) {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			out[string(padded[i:i+3])] = struct{}{}
		}
	}
	return out
}
