package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"log/slog"

	"github.com/fairyhunter13/llm-answer-gate/internal/config"
	"github.com/fairyhunter13/llm-answer-gate/internal/domain"
	"github.com/fairyhunter13/llm-answer-gate/internal/observability"
)

// Embedder implements domain.Embedder against an Ollama embeddings
// endpoint (/api/embeddings, one text per call).
type Embedder struct {
	cfg     config.Config
	baseURL string
	model   string
	hc      *http.Client
}

// NewEmbedder constructs an Ollama-backed embedder.
func NewEmbedder(cfg config.Config) *Embedder {
	return &Embedder{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.EmbeddingsBaseURL, "/"),
		model:   cfg.EmbeddingsModel,
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx domain.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text for embedding", domain.ErrInvalidArgument)
	}

	body := map[string]any{
		"model":  e.model,
		"prompt": text,
	}
	b, _ := json.Marshal(body)

	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	op := func() error {
		start := time.Now()
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(b))
		r.Header.Set("Content-Type", "application/json")
		resp, err := e.hc.Do(r)
		observability.AIRequestsTotal.WithLabelValues("embeddings", "embed").Inc()
		observability.AIRequestDuration.WithLabelValues("embeddings", "embed").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			slog.Error("failed to read embeddings response body", slog.Any("error", err))
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("embeddings rate limited", slog.Int("status", resp.StatusCode))
			return fmt.Errorf("rate limited: 429")
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			slog.Warn("embeddings 4xx", slog.Int("status", resp.StatusCode), slog.String("model", e.model), slog.String("endpoint", e.baseURL+"/api/embeddings"), slog.String("body", snippet(bodyBytes, 512)))
			return backoff.Permanent(fmt.Errorf("embed status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Error("embeddings non-2xx", slog.Int("status", resp.StatusCode), slog.String("model", e.model), slog.String("endpoint", e.baseURL+"/api/embeddings"), slog.String("body", snippet(bodyBytes, 512)))
			return fmt.Errorf("embed status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Error("embeddings decode error", slog.String("model", e.model), slog.Any("error", err))
			return err
		}
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	maxElapsedTime, initialInterval, maxInterval, multiplier := e.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		slog.Error("embeddings failed after retries", slog.Any("error", err))
		return nil, fmt.Errorf("%w: embeddings: %v", domain.ErrProviderUnavailable, err)
	}

	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: embeddings returned empty vector", domain.ErrEmptyResponse)
	}
	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

var _ domain.Embedder = (*Embedder)(nil)
