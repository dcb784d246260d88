package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrEmptyResponse       = errors.New("empty response")
	ErrQuotaExceeded       = errors.New("daily quota exceeded")
	ErrUpstreamRateLimit   = errors.New("upstream rate limit")
	ErrInternal            = errors.New("internal error")
)

// Mode selects which providers the decision engine consults.
type Mode string

const (
	ModeFallback   Mode = "fallback"
	ModeLocalOnly  Mode = "local_only"
	ModeOpenAIOnly Mode = "openai_only"
)

// Valid reports whether the mode is one of the known values.
func (m Mode) Valid() bool {
	switch m {
	case ModeFallback, ModeLocalOnly, ModeOpenAIOnly:
		return true
	}
	return false
}

// Provider names used for stats and quota keys.
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
)

// VerdictKind is the closed set of response validation outcomes.
type VerdictKind int

const (
	VerdictAccepted VerdictKind = iota
	VerdictTooComplex
	VerdictEmpty
)

// Verdict is the result of response validation. Text is set only when
// Kind is VerdictAccepted and holds the cleaned response.
type Verdict struct {
	Kind VerdictKind
	Text string
}

// SemanticScore holds embedding-based relevance scoring for one
// (question, response) pair. All scores are in [0,1] except
// EntityBoost which is a multiplier >= 1.
type SemanticScore struct {
	SemanticSimilarity float64 `json:"semantic_similarity"`
	ContextSimilarity  float64 `json:"context_similarity"`
	EntityBoost        float64 `json:"entity_boost"`
	CombinedScore      float64 `json:"combined_score"`
	Available          bool    `json:"available"`
	PassesThreshold    bool    `json:"passes_threshold"`
}

// ProviderStats is a snapshot of one provider's usage counters.
type ProviderStats struct {
	Enabled          bool          `json:"enabled"`
	TotalRequests    int64         `json:"total_requests"`
	FailedRequests   int64         `json:"failed_requests"`
	SuccessRate      float64       `json:"success_rate"`
	AvgLatency       time.Duration `json:"avg_latency"`
	MinLatency       time.Duration `json:"min_latency"`
	MaxLatency       time.Duration `json:"max_latency"`
	RecentSampleSize int           `json:"recent_sample_size"`
}

// SemanticStats is a snapshot of the semantic scorer's cache counters.
type SemanticStats struct {
	Available   bool    `json:"available"`
	CacheSize   int     `json:"cache_size"`
	CacheLimit  int     `json:"cache_limit"`
	CacheHits   int64   `json:"cache_hits"`
	CacheMisses int64   `json:"cache_misses"`
	HitRate     float64 `json:"hit_rate"`
}

// QuotaUsage reports the remote provider's daily quota consumption.
type QuotaUsage struct {
	TodayUsage int    `json:"today_usage"`
	DailyLimit int    `json:"daily_limit"`
	Remaining  int    `json:"remaining"`
	Unlimited  bool   `json:"unlimited"`
	Date       string `json:"date"`
}

// Provider (port)
// Complete sends one chat-completion request and returns the raw
// message content. An empty string with nil error means the model
// produced no text; callers decide whether to retry.
type Provider interface {
	Name() string
	Complete(ctx Context, systemPrompt, userMessage string, maxTokens int, temperature float64) (string, error)
}

// Embedder (port)
// Embed returns one embedding vector for the given text.
type Embedder interface {
	Embed(ctx Context, text string) ([]float32, error)
}

// QuotaStore (port)
// Persists per-(provider, calendar day) call counts across restarts.
type QuotaStore interface {
	TodayUsage(ctx Context, provider string) (int, error)
	Increment(ctx Context, provider string) error
	Cleanup(ctx Context, retentionDays int) (int64, error)
}

// Context is an alias so adapters and the gate share the std context
// without the domain package importing it in every signature.
type Context = context.Context
