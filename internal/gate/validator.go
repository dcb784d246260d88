// Package gate implements the response-quality gate: validation,
// relevance and coherence scoring, and the multi-provider fallback
// decision engine.
package gate

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/fairyhunter13/llm-answer-gate/internal/domain"
)

// Shape budgets for a narrow chat medium. Strict bounds apply when no
// fallback provider can salvage a rejected answer; lenient bounds apply
// when escalation is available.
const (
	strictMaxSentences  = 3
	strictMaxChars      = 400
	lenientMaxSentences = 5
	lenientMaxChars     = 600

	maxNewlines  = 2
	maxListItems = 5
	maxColons    = 3
)

var (
	thinkBlockRe   = regexp.MustCompile(`(?s)<think>.*?</think>`)
	thinkTagRe     = regexp.MustCompile(`(?i)</?think[^>]*>`)
	numberedItemRe = regexp.MustCompile(`\d+\.`)

	academicWords = []string{"however", "furthermore", "moreover", "specifically", "particularly"}
)

// Validator cleans raw model output and enforces shape budgets.
type Validator struct{}

// NewValidator creates a response validator.
func NewValidator() *Validator { return &Validator{} }

// Clean strips meta-reasoning markup and normalizes whitespace.
// Cleaning is idempotent: cleaning a cleaned string is a no-op.
func (v *Validator) Clean(raw string) string {
	s := thinkBlockRe.ReplaceAllString(raw, "")
	// An unclosed <think> means the rest of the text is reasoning.
	if idx := strings.Index(s, "<think>"); idx >= 0 {
		s = s[:idx]
	}
	s = thinkTagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Validate cleans raw output and checks it against the shape budgets
// for the chat medium. The verdict is a closed set: Accepted carries
// the cleaned text, TooComplex and Empty carry nothing.
func (v *Validator) Validate(raw string, strict bool) domain.Verdict {
	clean := v.Clean(raw)
	if clean == "" {
		return domain.Verdict{Kind: domain.VerdictEmpty}
	}

	maxSentences, maxChars := lenientMaxSentences, lenientMaxChars
	if strict {
		maxSentences, maxChars = strictMaxSentences, strictMaxChars
	}
	if countSentenceTerminators(clean) > maxSentences || len(clean) > maxChars {
		return domain.Verdict{Kind: domain.VerdictTooComplex}
	}
	if v.tooStructured(clean, strict) {
		return domain.Verdict{Kind: domain.VerdictTooComplex}
	}
	return domain.Verdict{Kind: domain.VerdictAccepted, Text: clean}
}

// tooStructured fires on paragraph, list, and colon density that does
// not survive a single chat line. The academic-language check is
// skipped in lenient mode.
func (v *Validator) tooStructured(clean string, strict bool) bool {
	if strings.Count(clean, "\n") > maxNewlines {
		return true
	}
	if len(numberedItemRe.FindAllString(clean, -1)) > maxListItems || strings.Count(clean, "•") > maxListItems {
		return true
	}
	if strings.Count(clean, ":") > maxColons {
		return true
	}
	if strict {
		lower := strings.ToLower(clean)
		for _, w := range academicWords {
			if strings.Contains(lower, w) {
				return true
			}
		}
	}
	return false
}

// countSentenceTerminators counts '.', '!' and '?', excluding periods
// immediately preceded by a digit so numbered-list markers ("3.") are
// not mistaken for sentence endings.
func countSentenceTerminators(s string) int {
	count := 0
	prev := rune(0)
	for _, r := range s {
		switch r {
		case '!', '?':
			count++
		case '.':
			if !unicode.IsDigit(prev) {
				count++
			}
		}
		prev = r
	}
	return count
}
