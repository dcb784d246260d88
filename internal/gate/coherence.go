package gate

import (
	"strings"

	"github.com/fairyhunter13/llm-answer-gate/pkg/textx"
)

// Coherence thresholds. Like the relevance thresholds these are
// empirical calibration, not derived values.
const (
	repetitionRatio       = 0.3
	minWordsForFrequency  = 5
	tripleRepeatMinLen    = 4
	contradictionMaxWords = 50
	minSentencesForLead   = 3
)

// Enumerator words legitimately repeat ("Example 1 ... Example 2 ...").
var enumeratorWords = map[string]bool{
	"example": true, "option": true, "step": true, "item": true, "point": true,
}

// Function words that should never end a sentence.
var danglingWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"with": true, "to": true, "of": true, "for": true, "in": true, "on": true,
	"at": true, "is": true, "are": true, "should": true, "must": true,
	"need": true, "you": true, "your": true,
}

var leadingConjunctions = map[string]bool{
	"and": true, "but": true, "or": true, "so": true, "because": true,
}

// Word pairs whose co-occurrence in a short response almost always
// signals a degenerate generation rather than nuance.
var contradictionPairs = [][2]string{
	{"can", "cannot"},
	{"can", "can't"},
	{"always", "never"},
	{"always", "sometimes"},
	{"possible", "impossible"},
	{"will", "won't"},
}

// CoherenceChecker detects degenerate generation artifacts: runaway
// repetition, broken sentence structure, and direct self-contradiction.
type CoherenceChecker struct{}

// NewCoherenceChecker creates a coherence checker.
func NewCoherenceChecker() *CoherenceChecker { return &CoherenceChecker{} }

// HasPoorCoherence reports whether any degeneracy signal fires.
func (cc *CoherenceChecker) HasPoorCoherence(response string) bool {
	return cc.HasExcessiveRepetition(response) ||
		cc.hasBrokenStructure(response) ||
		cc.hasLogicalInconsistency(response)
}

// HasExcessiveRepetition fires on dominant word frequency, recurring
// 3-word phrases, or a word repeated three times in a row.
func (cc *CoherenceChecker) HasExcessiveRepetition(response string) bool {
	words := textx.Words(response)

	// Frequency check over meaningful, non-enumerator words.
	meaningful := textx.MeaningfulWords(response, tripleRepeatMinLen-1, enumeratorWords)
	if len(meaningful) >= minWordsForFrequency {
		counts := make(map[string]int, len(meaningful))
		for _, w := range meaningful {
			counts[w]++
		}
		limit := float64(len(meaningful)) * repetitionRatio
		for _, n := range counts {
			if float64(n) > limit {
				return true
			}
		}
	}

	// A 3-word phrase that reoccurs later in the same text.
	if len(words) >= 6 {
		seen := make(map[string]bool)
		for i := 0; i+3 <= len(words); i++ {
			phrase := strings.Join(words[i:i+3], " ")
			if seen[phrase] {
				return true
			}
			seen[phrase] = true
		}
	}

	// Immediate triple repetition of a content word.
	for i := 0; i+3 <= len(words); i++ {
		w := strings.Trim(words[i], ".,!?;:")
		if len(w) <= tripleRepeatMinLen || enumeratorWords[w] {
			continue
		}
		if strings.Trim(words[i+1], ".,!?;:") == w && strings.Trim(words[i+2], ".,!?;:") == w {
			return true
		}
	}
	return false
}

// hasBrokenStructure flags sentences ending in a dangling function word
// and, for short responses, sentences opening with a conjunction.
func (cc *CoherenceChecker) hasBrokenStructure(response string) bool {
	sentences := textx.SplitSentences(response)
	for _, s := range sentences {
		words := textx.Words(s)
		if len(words) < 2 {
			continue
		}
		last := strings.Trim(words[len(words)-1], ",;:")
		if danglingWords[last] {
			return true
		}
		if len(sentences) < minSentencesForLead && leadingConjunctions[words[0]] {
			return true
		}
	}
	return false
}

// hasLogicalInconsistency flags paired contradictory terms in short
// responses. Longer text legitimately uses both words of a pair in
// unrelated clauses and is exempted.
func (cc *CoherenceChecker) hasLogicalInconsistency(response string) bool {
	words := textx.Words(response)
	if len(words) >= contradictionMaxWords {
		return false
	}
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.Trim(w, ".,!?;:'\"")] = true
	}
	for _, pair := range contradictionPairs {
		if set[pair[0]] && set[pair[1]] {
			return true
		}
	}
	return false
}
