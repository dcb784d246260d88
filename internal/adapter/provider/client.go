// Package provider implements chat and embedding clients for
// OpenAI-compatible HTTP APIs, covering both a local Ollama-style
// endpoint and the hosted OpenAI API.
package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"log/slog"

	"github.com/fairyhunter13/llm-answer-gate/internal/adapter/provider/tokencount"
	"github.com/fairyhunter13/llm-answer-gate/internal/config"
	"github.com/fairyhunter13/llm-answer-gate/internal/domain"
	"github.com/fairyhunter13/llm-answer-gate/internal/observability"
)

// Client implements domain.Provider against an OpenAI-compatible
// chat completions endpoint.
type Client struct {
	cfg     config.Config
	name    string
	baseURL string
	apiKey  string
	model   string
	hc      *http.Client
}

// NewLocal constructs a client for the local Ollama-style endpoint.
// Local models can be slow to load on first use, so the timeout is
// generous.
func NewLocal(cfg config.Config) *Client {
	return &Client{
		cfg:     cfg,
		name:    domain.ProviderLocal,
		baseURL: cfg.LocalBaseURL,
		apiKey:  cfg.LocalAPIKey,
		model:   cfg.LocalModel,
		hc:      &http.Client{Timeout: 120 * time.Second},
	}
}

// NewOpenAI constructs a client for the hosted OpenAI API.
func NewOpenAI(cfg config.Config) *Client {
	return &Client{
		cfg:     cfg,
		name:    domain.ProviderOpenAI,
		baseURL: cfg.OpenAIBaseURL,
		apiKey:  cfg.OpenAIAPIKey,
		model:   cfg.OpenAIModel,
		hc:      &http.Client{Timeout: 60 * time.Second},
	}
}

// Name returns the provider identity used in logs and metrics.
func (c *Client) Name() string { return c.name }

func (c *Client) backoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsedTime, initialInterval, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

// Complete calls the chat completions endpoint and returns the first
// choice's message content. Rate limits and 5xx responses are retried
// with exponential backoff; other 4xx responses fail immediately.
func (c *Client) Complete(ctx domain.Context, systemPrompt, userMessage string, maxTokens int, temperature float64) (string, error) {
	if c.apiKey == "" {
		slog.Error("provider API key missing", slog.String("provider", c.name))
		return "", fmt.Errorf("%w: %s API key missing", domain.ErrInvalidArgument, c.name)
	}

	body := map[string]any{
		"model":       c.model,
		"temperature": temperature,
		"max_tokens":  maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userMessage},
		},
	}
	b, _ := json.Marshal(body)

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	rateLimited := false
	op := func() error {
		start := time.Now()
		// Recreate the request each attempt to avoid reusing consumed bodies.
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(b))
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(r)
		observability.AIRequestsTotal.WithLabelValues(c.name, "chat").Inc()
		observability.AIRequestDuration.WithLabelValues(c.name, "chat").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			slog.Error("failed to read response body", slog.String("provider", c.name), slog.Any("error", err))
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			rateLimited = true
			slog.Warn("provider rate limited", slog.String("provider", c.name), slog.String("op", "chat"), slog.Int("status", resp.StatusCode), slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
			return fmt.Errorf("rate limited: 429")
		}
		rateLimited = false
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// Client error: non-retryable.
			slog.Warn("provider 4xx", slog.String("provider", c.name), slog.String("op", "chat"), slog.Int("status", resp.StatusCode), slog.String("model", c.model), slog.String("endpoint", c.baseURL+"/chat/completions"), slog.String("body", snippet(bodyBytes, 512)))
			return backoff.Permanent(fmt.Errorf("chat status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// 5xx and others: retryable.
			slog.Error("provider non-2xx", slog.String("provider", c.name), slog.String("op", "chat"), slog.Int("status", resp.StatusCode), slog.String("model", c.model), slog.String("endpoint", c.baseURL+"/chat/completions"), slog.String("body", snippet(bodyBytes, 512)))
			return fmt.Errorf("chat status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Error("provider decode error", slog.String("provider", c.name), slog.String("op", "chat"), slog.String("model", c.model), slog.Any("error", err))
			return err
		}
		return nil
	}

	expo := c.backoffConfig()
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		slog.Error("provider failed after retries", slog.String("provider", c.name), slog.Any("error", err))
		if rateLimited {
			return "", fmt.Errorf("%w: %s", domain.ErrUpstreamRateLimit, c.name)
		}
		return "", fmt.Errorf("%w: %s chat: %v", domain.ErrProviderUnavailable, c.name, err)
	}

	if len(out.Choices) == 0 {
		slog.Error("provider returned no choices", slog.String("provider", c.name), slog.String("model", c.model))
		return "", fmt.Errorf("%w: %s returned no choices", domain.ErrEmptyResponse, c.name)
	}

	content := out.Choices[0].Message.Content
	usage := tokencount.CalculateUsageDefault(systemPrompt, userMessage, content, c.model, c.name)
	slog.Debug("chat completion succeeded",
		slog.String("provider", c.name),
		slog.String("model", c.model),
		slog.Int("prompt_tokens", usage.PromptTokens),
		slog.Int("completion_tokens", usage.CompletionTokens),
		slog.Int("total_tokens", usage.TotalTokens))
	return content, nil
}

// Ping verifies the endpoint is reachable by listing models. It is
// used as a startup self-test so misconfigured endpoints surface in
// the logs immediately instead of on the first question.
func (c *Client) Ping(ctx domain.Context) error {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.hc.Do(r)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrProviderUnavailable, c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s models status %d", domain.ErrProviderUnavailable, c.name, resp.StatusCode)
	}
	return nil
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

var _ domain.Provider = (*Client)(nil)
