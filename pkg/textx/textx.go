// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Words splits s into lowercased whitespace-separated tokens.
func Words(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// MeaningfulWords returns lowercased tokens longer than minLen after
// stripping surrounding punctuation. Tokens in skip are dropped.
func MeaningfulWords(s string, minLen int, skip map[string]bool) []string {
	var out []string
	for _, w := range Words(s) {
		w = strings.Trim(w, ".,!?;:'\"()[]{}")
		if len(w) <= minLen {
			continue
		}
		if skip != nil && skip[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// SplitSentences splits s on sentence terminators and returns trimmed,
// non-empty fragments.
func SplitSentences(s string) []string {
	frags := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := make([]string, 0, len(frags))
	for _, f := range frags {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
