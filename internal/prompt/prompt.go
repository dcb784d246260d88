// Package prompt holds the fixed outward-facing message catalog and
// the system prompt builder for the answer gate.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fixed user-facing terminal messages. The fallback engine matches
// responses against MsgLLMUnavailable, MsgTooComplex and MsgNoResponse
// verbatim, so these must never be reworded casually.
const (
	MsgLLMUnavailable     = "❌ LLM is not available"
	MsgTooComplex         = "That's too complicated to answer here"
	MsgNoResponse         = "I'm not sure how to respond to that."
	MsgRateLimited        = "⏰ Slow down! You're asking too many questions. Try again in a minute."
	MsgOpenAILimitReached = "🚫 Daily OpenAI usage limit reached. Try again tomorrow or ask something simpler for local AI."
)

// LLMError formats a provider failure for display.
func LLMError(err error) string {
	return fmt.Sprintf("❌ Error calling LLM: %v", err)
}

// Persona is optional custom persona text loaded from a YAML file.
type Persona struct {
	Text string `yaml:"text"`
}

// LoadPersona reads persona text from path.
func LoadPersona(path string) (Persona, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("read persona file: %w", err)
	}
	var p Persona
	if err := yaml.Unmarshal(b, &p); err != nil {
		return Persona{}, fmt.Errorf("parse persona file: %w", err)
	}
	if strings.TrimSpace(p.Text) == "" {
		return Persona{}, fmt.Errorf("persona file %s has empty text", path)
	}
	return p, nil
}

// SystemPrompt builds the instruction text for the provider's system
// role. Deterministic: same inputs always produce the same text.
func SystemPrompt(botName, context, personaText string) string {
	base := fmt.Sprintf(
		"You are %s, a friendly chat bot. "+
			"Give direct, concise answers without any thinking process or reasoning. "+
			"Do not use <think> tags or explain your thought process. "+
			"Answer immediately and briefly. "+
			"Example: User says 'hello' -> You say 'Hi there!' "+
			"User says 'how are you?' -> You say 'I'm great, thanks!' "+
			"User says 'name three mountain ranges' -> You say 'The Rocky Mountains, Sierra Nevada, and Cascade Range.' "+
			"Keep responses 1-3 sentences max. No thinking, just direct answers.",
		botName,
	)
	if personaText != "" {
		base = base + "\n\nPersona:\n" + personaText
	}
	if context != "" {
		base = base + "\n\nRecent context:\n" + context
	}
	return base
}

// NameResponse is the canned answer for name questions.
func NameResponse(botName string) string {
	return fmt.Sprintf("I'm %s!", botName)
}

var namePatterns = []string{
	"what's your name",
	"what is your name",
	"who are you",
	"what are you called",
	"your name?",
}

// IsNameQuestion reports whether the question asks for the bot's name.
// Name questions are intercepted before any provider call.
func IsNameQuestion(question string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, p := range namePatterns {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}

const maxContextLines = 5

// FormatContext turns recent chat lines into the context block for the
// system prompt. Command lines (prefixed with '!') are skipped to avoid
// the bot prompting itself; only the last few non-command lines are kept.
func FormatContext(lines []string) string {
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "!") {
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) > maxContextLines {
		kept = kept[len(kept)-maxContextLines:]
	}
	return strings.Join(kept, "\n")
}
