package gate

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/llm-answer-gate/internal/config"
	"github.com/fairyhunter13/llm-answer-gate/internal/domain"
	"github.com/fairyhunter13/llm-answer-gate/internal/observability"
	"github.com/fairyhunter13/llm-answer-gate/internal/prompt"
	"github.com/fairyhunter13/llm-answer-gate/pkg/textx"
)

// Fallback predicate thresholds.
const (
	minResponseChars = 3
	maxDontKnowWords = 12
)

// dontKnowOpeners only count when they appear at the very start of a
// short response; the same phrase mid-sentence is contextual.
var dontKnowOpeners = []string{
	"i don't know",
	"i dont know",
	"i do not know",
	"i can't help",
	"i cannot help",
	"i can't",
	"i'm not sure",
	"i am not sure",
	"no idea",
	"i'm unable",
	"i am unable",
}

// Engine composes validation, relevance, coherence and semantic
// signals into a single accept/retry/escalate decision per question.
type Engine struct {
	cfg     config.Config
	persona string

	local  domain.Provider
	remote domain.Provider
	quota  domain.QuotaStore

	validator *Validator
	relevance *RelevanceScorer
	coherence *CoherenceChecker
	semantic  *SemanticScorer

	localUsage  *UsageRecorder
	remoteUsage *UsageRecorder

	semanticFallbacks atomic.Int64
}

// Options carries the engine's injectable collaborators. Local and
// Remote may be nil when the corresponding provider is not configured;
// Quota may be nil to disable quota enforcement; Semantic may be nil.
type Options struct {
	Local       domain.Provider
	Remote      domain.Provider
	Quota       domain.QuotaStore
	Semantic    *SemanticScorer
	PersonaText string
}

// NewEngine constructs the decision engine.
func NewEngine(cfg config.Config, opts Options) *Engine {
	return &Engine{
		cfg:         cfg,
		persona:     opts.PersonaText,
		local:       opts.Local,
		remote:      opts.Remote,
		quota:       opts.Quota,
		validator:   NewValidator(),
		relevance:   NewRelevanceScorer(),
		coherence:   NewCoherenceChecker(),
		semantic:    opts.Semantic,
		localUsage:  NewUsageRecorder(),
		remoteUsage: NewUsageRecorder(),
	}
}

// Ask answers a question, selecting providers per the configured mode.
// It always returns text: either a model answer or one of the fixed
// terminal messages. Errors never cross this boundary.
func (e *Engine) Ask(ctx domain.Context, question, context string) string {
	q := strings.TrimSpace(question)
	if q == "" {
		observability.GateDecisionsTotal.WithLabelValues("empty_question").Inc()
		return prompt.MsgNoResponse
	}

	// Name questions are answered without spending a provider call.
	if prompt.IsNameQuestion(q) {
		observability.GateDecisionsTotal.WithLabelValues("name_intercept").Inc()
		return prompt.NameResponse(e.cfg.BotName)
	}

	switch e.cfg.ProviderMode() {
	case domain.ModeLocalOnly:
		text, _ := e.askLocal(ctx, q, context, true)
		return text
	case domain.ModeOpenAIOnly:
		text, _ := e.askRemote(ctx, q, context)
		return text
	default:
		return e.askWithFallback(ctx, q, context)
	}
}

// askWithFallback tries the local provider first and escalates to the
// remote provider when the local answer is judged inadequate. If the
// remote leg fails, whatever the local provider produced is returned
// rather than nothing.
func (e *Engine) askWithFallback(ctx domain.Context, question, context string) string {
	// A poor local answer can still be salvaged by escalation, so
	// local validation is lenient whenever a remote net exists.
	strictLocal := e.remote == nil
	localText, localOK := e.askLocal(ctx, question, context, strictLocal)

	if localOK && !e.isFallbackResponse(ctx, localText, question, context) {
		observability.GateDecisionsTotal.WithLabelValues("local_accept").Inc()
		return localText
	}
	if e.remote == nil {
		observability.GateDecisionsTotal.WithLabelValues("local_returned").Inc()
		return localText
	}

	slog.Info("escalating to remote provider",
		slog.String("question", truncate(question, 50)),
		slog.Bool("local_produced_text", localOK))

	remoteText, remoteOK := e.askRemote(ctx, question, context)
	if remoteOK {
		observability.GateDecisionsTotal.WithLabelValues("remote_accept").Inc()
		return remoteText
	}
	// The quota message explains why no better answer is coming, so it
	// beats repeating the already-flagged local answer.
	if remoteText == prompt.MsgOpenAILimitReached {
		observability.GateDecisionsTotal.WithLabelValues("quota_limited").Inc()
		return remoteText
	}
	// Remote is unavailable or failed: prefer any text the local
	// provider managed over surfacing a hard failure.
	if strings.TrimSpace(localText) != "" && localOK {
		observability.GateDecisionsTotal.WithLabelValues("local_returned").Inc()
		return localText
	}
	observability.GateDecisionsTotal.WithLabelValues("error").Inc()
	return remoteText
}

// completionKind makes the retry control transfer explicit rather than
// signaling it with an empty-string sentinel.
type completionKind int

const (
	completionText completionKind = iota
	completionRetry
	completionFailed
)

type completionResult struct {
	kind completionKind
	text string
	err  error
}

// complete executes one provider call and records its usage counters.
func (e *Engine) complete(ctx domain.Context, p domain.Provider, rec *UsageRecorder, system, question string) completionResult {
	start := time.Now()
	text, err := p.Complete(ctx, system, question, e.cfg.MaxTokens, e.cfg.Temperature)
	latency := time.Since(start)
	if err != nil {
		rec.Record(latency, false)
		slog.Error("provider call failed",
			slog.String("provider", p.Name()),
			slog.Duration("latency", latency),
			slog.Any("error", err))
		return completionResult{kind: completionFailed, err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		rec.Record(latency, false)
		slog.Warn("provider returned empty response", slog.String("provider", p.Name()))
		return completionResult{kind: completionRetry}
	}
	rec.Record(latency, true)
	return completionResult{kind: completionText, text: text}
}

// askLocal asks the local provider with its retry budget. The boolean
// result reports whether the text is a model answer (possibly a
// rejected one) as opposed to a terminal error message.
func (e *Engine) askLocal(ctx domain.Context, question, context string, strict bool) (string, bool) {
	if e.local == nil {
		return prompt.MsgLLMUnavailable, false
	}
	system := prompt.SystemPrompt(e.cfg.BotName, context, e.persona)

	for attempt := 1; attempt <= e.cfg.LocalMaxAttempts; attempt++ {
		res := e.complete(ctx, e.local, e.localUsage, system, question)
		switch res.kind {
		case completionFailed:
			return prompt.LLMError(res.err), false
		case completionRetry:
			continue
		case completionText:
			verdict := e.validator.Validate(res.text, strict)
			switch verdict.Kind {
			case domain.VerdictAccepted:
				return verdict.Text, true
			case domain.VerdictTooComplex:
				return prompt.MsgTooComplex, true
			case domain.VerdictEmpty:
				// Cleaning stripped everything; treat as empty.
				continue
			}
		}
	}
	return prompt.MsgNoResponse, false
}

// askRemote asks the remote provider under the daily quota. The
// boolean result reports whether a validated answer was produced.
func (e *Engine) askRemote(ctx domain.Context, question, context string) (string, bool) {
	if e.remote == nil {
		return prompt.MsgLLMUnavailable, false
	}
	if !e.canUseRemote(ctx) {
		observability.QuotaRejectionsTotal.Inc()
		return prompt.MsgOpenAILimitReached, false
	}
	system := prompt.SystemPrompt(e.cfg.BotName, context, e.persona)

	for attempt := 1; attempt <= e.cfg.OpenAIMaxAttempts; attempt++ {
		res := e.complete(ctx, e.remote, e.remoteUsage, system, question)
		switch res.kind {
		case completionFailed:
			return prompt.LLMError(res.err), false
		case completionRetry:
			continue
		case completionText:
			// Quota is charged only for completed calls that
			// produced text, never for the provider's own errors.
			e.recordRemoteUse(ctx)
			verdict := e.validator.Validate(res.text, true)
			switch verdict.Kind {
			case domain.VerdictAccepted:
				return verdict.Text, true
			case domain.VerdictTooComplex:
				return prompt.MsgTooComplex, false
			case domain.VerdictEmpty:
				continue
			}
		}
	}
	return prompt.MsgNoResponse, false
}

// canUseRemote checks the persisted daily quota. Limit <= 0 means
// unlimited; store errors fail open so a broken quota store does not
// take the remote provider down with it.
func (e *Engine) canUseRemote(ctx domain.Context) bool {
	if e.quota == nil || e.cfg.OpenAIDailyLimit <= 0 {
		return true
	}
	usage, err := e.quota.TodayUsage(ctx, domain.ProviderOpenAI)
	if err != nil {
		slog.Warn("quota lookup failed; allowing request", slog.Any("error", err))
		return true
	}
	return usage < e.cfg.OpenAIDailyLimit
}

func (e *Engine) recordRemoteUse(ctx domain.Context) {
	if e.quota == nil {
		return
	}
	if err := e.quota.Increment(ctx, domain.ProviderOpenAI); err != nil {
		slog.Error("failed to record remote quota use", slog.Any("error", err))
	}
}

// isFallbackResponse is the per-request decision predicate: it reports
// whether a response is inadequate enough to justify escalating to the
// secondary provider.
func (e *Engine) isFallbackResponse(ctx domain.Context, response, question, context string) bool {
	r := strings.TrimSpace(response)
	q := strings.TrimSpace(question)

	if r == "" || q == "" {
		return e.flagFallback("empty")
	}
	if r == prompt.MsgLLMUnavailable || r == prompt.MsgTooComplex || r == prompt.MsgNoResponse {
		return e.flagFallback("error_message")
	}
	if len(r) < minResponseChars {
		return e.flagFallback("too_short")
	}
	if isDontKnowResponse(r) {
		return e.flagFallback("dont_know")
	}
	if e.coherence.HasPoorCoherence(r) {
		return e.flagFallback("poor_coherence")
	}
	if e.semantic != nil && e.semantic.Available() && e.semantic.ShouldFallback(ctx, q, r, context) {
		e.semanticFallbacks.Add(1)
		return e.flagFallback("semantic")
	}
	if !e.relevance.IsRelevant(q, r) {
		return e.flagFallback("irrelevant")
	}
	return false
}

func (e *Engine) flagFallback(trigger string) bool {
	observability.GateFallbacksTotal.WithLabelValues(trigger).Inc()
	return true
}

// isDontKnowResponse flags unhelpful non-answers: a don't-know opener
// at the very start of a short response. The same phrase later in the
// text, or in a long response that goes on to help, does not count.
func isDontKnowResponse(response string) bool {
	lower := strings.ToLower(strings.TrimSpace(response))
	if len(textx.Words(response)) > maxDontKnowWords {
		return false
	}
	for _, opener := range dontKnowOpeners {
		if strings.HasPrefix(lower, opener) {
			return true
		}
	}
	return false
}

// PerformanceReport aggregates per-provider and scorer statistics.
type PerformanceReport struct {
	Mode              string               `json:"mode"`
	Local             domain.ProviderStats `json:"local"`
	OpenAI            domain.ProviderStats `json:"openai"`
	Semantic          domain.SemanticStats `json:"semantic"`
	Quota             domain.QuotaUsage    `json:"quota"`
	SemanticFallbacks int64                `json:"semantic_fallbacks"`
}

// PerformanceStats returns a snapshot of all counters.
func (e *Engine) PerformanceStats(ctx domain.Context) PerformanceReport {
	rep := PerformanceReport{
		Mode:              e.cfg.Mode,
		Local:             e.localUsage.Snapshot(),
		OpenAI:            e.remoteUsage.Snapshot(),
		SemanticFallbacks: e.semanticFallbacks.Load(),
	}
	rep.Local.Enabled = e.local != nil
	rep.OpenAI.Enabled = e.remote != nil
	if e.semantic != nil {
		rep.Semantic = e.semantic.Stats()
	}
	rep.Quota = e.quotaUsage(ctx)
	return rep
}

func (e *Engine) quotaUsage(ctx domain.Context) domain.QuotaUsage {
	usage := domain.QuotaUsage{
		DailyLimit: e.cfg.OpenAIDailyLimit,
		Unlimited:  e.cfg.OpenAIDailyLimit <= 0,
		Date:       time.Now().Format("2006-01-02"),
	}
	if e.quota == nil {
		return usage
	}
	n, err := e.quota.TodayUsage(ctx, domain.ProviderOpenAI)
	if err != nil {
		slog.Warn("quota usage lookup failed", slog.Any("error", err))
		return usage
	}
	usage.TodayUsage = n
	if !usage.Unlimited {
		usage.Remaining = usage.DailyLimit - n
		if usage.Remaining < 0 {
			usage.Remaining = 0
		}
	}
	return usage
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
