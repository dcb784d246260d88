package gate

import (
	"log/slog"
	"math"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fairyhunter13/llm-answer-gate/internal/config"
	"github.com/fairyhunter13/llm-answer-gate/internal/domain"
)

// SemanticScorer scores question/response relevance with embedding
// cosine similarity. It is optional: with no embedder it degrades to
// neutral scores and never forces a fallback it cannot justify.
type SemanticScorer struct {
	cfg      config.Config
	embedder domain.Embedder
	cache    *lru.Cache[string, []float32]
	hits     atomic.Int64
	misses   atomic.Int64
}

// NewSemanticScorer creates a semantic scorer. embedder may be nil,
// in which case the scorer reports itself unavailable.
func NewSemanticScorer(cfg config.Config, embedder domain.Embedder) (*SemanticScorer, error) {
	s := &SemanticScorer{cfg: cfg, embedder: embedder}
	if embedder != nil {
		cache, err := lru.New[string, []float32](cfg.SemanticCacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

// Available reports whether semantic scoring can run.
func (s *SemanticScorer) Available() bool {
	return s.cfg.SemanticEnabled && s.embedder != nil
}

// getEmbedding returns the embedding for text, consulting the LRU
// cache first. The cache key is the trimmed, lowercased text.
func (s *SemanticScorer) getEmbedding(ctx domain.Context, text string) []float32 {
	key := strings.ToLower(strings.TrimSpace(text))
	if v, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		return v
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		slog.Error("embedding failed", slog.Any("error", err), slog.Int("text_length", len(text)))
		return nil
	}
	s.misses.Add(1)
	s.cache.Add(key, vec)
	return vec
}

// ComputeSimilarity returns the cosine similarity of two texts,
// clamped to [0,1]. Returns 0 when the scorer is unavailable or an
// embedding cannot be produced.
func (s *SemanticScorer) ComputeSimilarity(ctx domain.Context, text1, text2 string) float64 {
	if !s.Available() {
		return 0
	}
	v1 := s.getEmbedding(ctx, text1)
	v2 := s.getEmbedding(ctx, text2)
	if v1 == nil || v2 == nil {
		return 0
	}
	return cosineSimilarity(v1, v2)
}

// ScoreRelevance computes the full semantic score for a response.
func (s *SemanticScorer) ScoreRelevance(ctx domain.Context, question, response, context string) domain.SemanticScore {
	if !s.Available() {
		return domain.SemanticScore{EntityBoost: 1.0}
	}

	semantic := s.ComputeSimilarity(ctx, question, response)
	contextScore := 0.0
	if s.cfg.SemanticContextEnabled && context != "" {
		contextScore = s.ComputeSimilarity(ctx, context, response)
	}
	boost := s.entityBoost(question, response)
	combined := (semantic*s.cfg.SemanticSimilarityWeight + contextScore*s.cfg.SemanticContextWeight) * boost

	return domain.SemanticScore{
		SemanticSimilarity: semantic,
		ContextSimilarity:  contextScore,
		EntityBoost:        boost,
		CombinedScore:      combined,
		Available:          true,
		PassesThreshold:    combined >= s.cfg.SemanticMinThreshold,
	}
}

// ShouldFallback reports whether the semantic score justifies an
// escalation. Always false when the scorer is unavailable.
func (s *SemanticScorer) ShouldFallback(ctx domain.Context, question, response, context string) bool {
	if !s.Available() {
		return false
	}
	return !s.ScoreRelevance(ctx, question, response, context).PassesThreshold
}

// entityBoost rewards responses that address the technical keywords
// present in the question. With no keywords in the question the boost
// is neutral (1.0); otherwise it scales linearly up to the configured
// maximum with the fraction of those keywords also in the response.
func (s *SemanticScorer) entityBoost(question, response string) float64 {
	if len(s.cfg.SemanticTechnicalKeywords) == 0 {
		return 1.0
	}
	qLower := strings.ToLower(question)
	rLower := strings.ToLower(response)

	inQuestion := 0
	inResponse := 0
	for _, kw := range s.cfg.SemanticTechnicalKeywords {
		kw = strings.ToLower(kw)
		if strings.Contains(qLower, kw) {
			inQuestion++
			if strings.Contains(rLower, kw) {
				inResponse++
			}
		}
	}
	if inQuestion == 0 || inResponse == 0 {
		return 1.0
	}
	coverage := math.Min(1.0, float64(inResponse)/float64(inQuestion))
	return 1.0 + (s.cfg.SemanticEntityBoost-1.0)*coverage
}

// Stats returns a snapshot of the scorer's cache counters.
func (s *SemanticScorer) Stats() domain.SemanticStats {
	st := domain.SemanticStats{
		Available:  s.Available(),
		CacheLimit: s.cfg.SemanticCacheSize,
	}
	if s.cache != nil {
		st.CacheSize = s.cache.Len()
	}
	st.CacheHits = s.hits.Load()
	st.CacheMisses = s.misses.Load()
	if total := st.CacheHits + st.CacheMisses; total > 0 {
		st.HitRate = float64(st.CacheHits) / float64(total)
	}
	return st
}

// ClearCache drops all cached embeddings and resets counters.
func (s *SemanticScorer) ClearCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
	s.hits.Store(0)
	s.misses.Store(0)
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(0, math.Min(1, sim))
}
