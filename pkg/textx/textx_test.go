package textx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hello", SanitizeText("\x00hel\x07lo\x1b"))
	assert.Equal(t, "a\nb\tc", SanitizeText(" a\nb\tc "))
}

func TestWords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"hello", "world!"}, Words("  Hello   WORLD!  "))
	assert.Empty(t, Words("   "))
}

func TestMeaningfulWords(t *testing.T) {
	t.Parallel()

	skip := map[string]bool{"example": true}
	got := MeaningfulWords("Example 1: Foo, bars and (bazzes).", 3, skip)
	// "example" is skipped, "1:" and "foo" and "and" are too short
	// after trimming; punctuation is stripped from the survivors.
	assert.Equal(t, []string{"bars", "bazzes"}, got)
}

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]string{"One", "Two two", "Three"},
		SplitSentences("One. Two two! Three?"))
	assert.Empty(t, SplitSentences("..."))
	assert.Equal(t, []string{"no terminator"}, SplitSentences("no terminator"))
}
