// Package strings normalizes free-text inputs: role tags from tokens and
// finding titles for similarity scoring.
package strings

import (
	"strings"
	"unicode"
)

// NormalizeTags trims and lower-cases each tag, dropping blanks and
// repeats. First occurrence order is kept.
func NormalizeTags(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		tag := strings.ToLower(strings.TrimSpace(v))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// Words splits s into lower-case runs of letters and digits. Punctuation and
// whitespace separate words.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
