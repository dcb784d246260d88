package gate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/llm-answer-gate/internal/domain"
)

func TestValidator_Clean(t *testing.T) {
	t.Parallel()

	v := NewValidator()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain_text_unchanged",
			input:    "Paris is the capital of France.",
			expected: "Paris is the capital of France.",
		},
		{
			name:     "closed_think_block_removed",
			input:    "<think>Let me reason about this.</think>The answer is 42.",
			expected: "The answer is 42.",
		},
		{
			name:     "multiple_think_blocks_removed",
			input:    "<think>one</think>Yes.<think>two</think>",
			expected: "Yes.",
		},
		{
			name:     "unclosed_think_cuts_remainder",
			input:    "Sure thing. <think>and now I will ramble forever",
			expected: "Sure thing.",
		},
		{
			name:     "stray_closing_tag_removed",
			input:    "</think>Hello there!",
			expected: "Hello there!",
		},
		{
			name:     "tag_with_attributes_removed",
			input:    "<THINK mode=deep>Hi.",
			expected: "Hi.",
		},
		{
			name:     "whitespace_trimmed",
			input:    "   spaced out   ",
			expected: "spaced out",
		},
		{
			name:     "only_think_content_becomes_empty",
			input:    "<think>nothing but reasoning</think>",
			expected: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := v.Clean(tt.input)
			assert.Equal(t, tt.expected, got)
			// Cleaning must be idempotent.
			assert.Equal(t, got, v.Clean(got))
		})
	}
}

func TestValidator_Validate_Strict(t *testing.T) {
	t.Parallel()

	v := NewValidator()

	tests := []struct {
		name string
		raw  string
		want domain.VerdictKind
	}{
		{
			name: "short_answer_accepted",
			raw:  "The Rockies, Sierra Nevada, and Cascades.",
			want: domain.VerdictAccepted,
		},
		{
			name: "three_sentences_accepted",
			raw:  "One. Two. Three.",
			want: domain.VerdictAccepted,
		},
		{
			name: "four_sentences_too_complex",
			raw:  "One. Two. Three. Four.",
			want: domain.VerdictTooComplex,
		},
		{
			name: "over_char_budget_too_complex",
			raw:  strings.Repeat("A", 401),
			want: domain.VerdictTooComplex,
		},
		{
			name: "decimal_not_a_sentence_end",
			raw:  "Pi is roughly 3.14159 and e is roughly 2.71828",
			want: domain.VerdictAccepted,
		},
		{
			name: "too_many_newlines",
			raw:  "line one\nline two\nline three\nline four",
			want: domain.VerdictTooComplex,
		},
		{
			name: "long_numbered_list",
			raw:  "1. a 2. b 3. c 4. d 5. e 6. f",
			want: domain.VerdictTooComplex,
		},
		{
			name: "bullet_spam",
			raw:  "• a • b • c • d • e • f",
			want: domain.VerdictTooComplex,
		},
		{
			name: "colon_density",
			raw:  "key: value, key: value, key: value, key: value",
			want: domain.VerdictTooComplex,
		},
		{
			name: "academic_language",
			raw:  "However, the answer depends on context.",
			want: domain.VerdictTooComplex,
		},
		{
			name: "empty_after_cleaning",
			raw:  "<think>all reasoning, no answer</think>",
			want: domain.VerdictEmpty,
		},
		{
			name: "blank_input",
			raw:  "   ",
			want: domain.VerdictEmpty,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verdict := v.Validate(tt.raw, true)
			assert.Equal(t, tt.want, verdict.Kind)
			if tt.want == domain.VerdictAccepted {
				assert.NotEmpty(t, verdict.Text)
			} else {
				assert.Empty(t, verdict.Text)
			}
		})
	}
}

func TestValidator_Validate_Lenient(t *testing.T) {
	t.Parallel()

	v := NewValidator()

	// Five sentences pass lenient bounds but fail strict ones.
	fiveSentences := "One. Two. Three. Four. Five."
	assert.Equal(t, domain.VerdictAccepted, v.Validate(fiveSentences, false).Kind)
	assert.Equal(t, domain.VerdictTooComplex, v.Validate(fiveSentences, true).Kind)

	// 500 chars pass lenient (600) but fail strict (400).
	long := strings.Repeat("B", 500)
	assert.Equal(t, domain.VerdictAccepted, v.Validate(long, false).Kind)
	assert.Equal(t, domain.VerdictTooComplex, v.Validate(long, true).Kind)

	// Academic language is tolerated in lenient mode.
	academic := "However, the answer depends on context."
	assert.Equal(t, domain.VerdictAccepted, v.Validate(academic, false).Kind)

	// Structural limits apply in both modes.
	assert.Equal(t, domain.VerdictTooComplex, v.Validate("a\nb\nc\nd", false).Kind)
}

func TestValidator_Validate_ReturnsCleanedText(t *testing.T) {
	t.Parallel()

	v := NewValidator()
	verdict := v.Validate("<think>hm</think>  The capital is Paris.  ", true)
	assert.Equal(t, domain.VerdictAccepted, verdict.Kind)
	assert.Equal(t, "The capital is Paris.", verdict.Text)
}
