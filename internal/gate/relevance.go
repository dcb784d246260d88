package gate

import (
	"regexp"
	"strings"

	"github.com/fairyhunter13/llm-answer-gate/pkg/textx"
)

// Relevance thresholds. These were hand-tuned against live chat
// traffic: deliberately lenient, because a false rejection costs a
// second network call while a false acceptance costs nothing.
const (
	minRelevanceRatio    = 0.05
	minQuestionWords     = 3
	shapeMismatchRatio   = 0.2
	shapeMismatchMinLen  = 5
	genericMaxWords      = 12
	explanationMinWords  = 5
	shortResponseWords   = 8
	minKeywordLen        = 2 // keep words of 3+ chars
)

// Question categories used for response-shape matching.
const (
	questionCode        = "code"
	questionProcedural  = "procedural"
	questionExplanation = "explanation"
	questionReasoning   = "reasoning"
	questionGeneral     = "general"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"were": true, "with": true, "this": true, "that": true, "you": true,
	"your": true, "what": true, "how": true, "why": true, "when": true,
	"where": true, "who": true, "can": true, "does": true, "do": true,
	"did": true, "will": true, "would": true, "should": true, "could": true,
	"has": true, "have": true, "had": true, "not": true, "but": true,
	"its": true, "it's": true,
}

var genericOpeners = []string{
	"i'd be happy to help",
	"i would be happy to help",
	"that's a great question",
	"great question",
	"here's some information",
	"i'd be glad to help",
}

var procItemRe = regexp.MustCompile(`\d+\.`)

// RelevanceScorer judges lexical relevance of a response to a question.
type RelevanceScorer struct{}

// NewRelevanceScorer creates a lexical relevance scorer.
func NewRelevanceScorer() *RelevanceScorer { return &RelevanceScorer{} }

// IsRelevant reports whether the response plausibly addresses the
// question. Short questions carry too little signal to judge and are
// exempted from the overlap check.
func (rs *RelevanceScorer) IsRelevant(question, response string) bool {
	qFields := textx.Words(question)
	qKeywords := textx.MeaningfulWords(question, minKeywordLen, stopwords)
	rKeywords := textx.MeaningfulWords(response, minKeywordLen, stopwords)

	ratio := keywordOverlap(qKeywords, rKeywords)
	longQuestion := len(qFields) > minQuestionWords

	if longQuestion && ratio < minRelevanceRatio {
		return false
	}

	qType := rs.IdentifyQuestionType(question)
	if !rs.ResponseMatchesQuestionType(qType, response) &&
		ratio < shapeMismatchRatio && len(qFields) > shapeMismatchMinLen {
		return false
	}

	if rs.IsGenericResponse(response) {
		return false
	}
	return true
}

// IdentifyQuestionType classifies the question by keyword sniffing.
func (rs *RelevanceScorer) IdentifyQuestionType(question string) string {
	q := strings.ToLower(question)
	switch {
	case containsAny(q, "write code", "code to", "write a function", "write function", "sql query", "git command", "regex for"):
		return questionCode
	case containsAny(q, "steps", "step by step", "procedure", "how to install", "how to deploy", "walk me through"):
		return questionProcedural
	case containsAny(q, "how do i", "how can i", "how to", "what is", "what are", "explain", "describe"):
		return questionExplanation
	case containsAny(q, "why "):
		return questionReasoning
	default:
		return questionGeneral
	}
}

// ResponseMatchesQuestionType checks that the response shape fits the
// question category. Reasoning and general questions accept any shape.
func (rs *RelevanceScorer) ResponseMatchesQuestionType(qType, response string) bool {
	words := textx.Words(response)
	lower := strings.ToLower(response)
	switch qType {
	case questionCode:
		if len(words) <= shortResponseWords {
			return true
		}
		return containsAny(lower, "def ", "function", "()", "{", "}", "=", "select ", "git ", "import ", "```", "install", "npm ", "pip ")
	case questionProcedural:
		if len(words) <= shortResponseWords {
			return true
		}
		return procItemRe.MatchString(response) ||
			containsAny(lower, "first", "then", "next", "finally", "step", "install", "configure")
	case questionExplanation:
		return len(words) >= explanationMinWords
	default:
		return true
	}
}

// IsGenericResponse flags template openers, but only on short responses.
// A long response that opens generically and continues with substance
// is accepted.
func (rs *RelevanceScorer) IsGenericResponse(response string) bool {
	lower := strings.ToLower(strings.TrimSpace(response))
	if len(textx.Words(response)) > genericMaxWords {
		return false
	}
	for _, opener := range genericOpeners {
		if strings.HasPrefix(lower, opener) {
			return true
		}
	}
	return false
}

func keywordOverlap(questionWords, responseWords []string) float64 {
	if len(questionWords) == 0 {
		return 1.0
	}
	set := make(map[string]bool, len(responseWords))
	for _, w := range responseWords {
		set[w] = true
	}
	matched := 0
	for _, w := range questionWords {
		if set[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(questionWords))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
