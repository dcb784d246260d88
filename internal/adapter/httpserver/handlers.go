package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fairyhunter13/llm-answer-gate/internal/config"
	"github.com/fairyhunter13/llm-answer-gate/internal/domain"
	"github.com/fairyhunter13/llm-answer-gate/internal/gate"
	"github.com/fairyhunter13/llm-answer-gate/internal/prompt"
)

// Answerer is the engine surface the HTTP layer depends on.
type Answerer interface {
	Ask(ctx domain.Context, question, context string) string
	PerformanceStats(ctx domain.Context) gate.PerformanceReport
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg    config.Config
	Engine Answerer

	// UsageHistory reports per-day remote usage for the stats endpoint.
	// May be nil when no quota store is configured.
	UsageHistory func(ctx context.Context, provider string, days int) (map[string]int, error)

	// Optional readiness checks per provider.
	LocalCheck  func(ctx context.Context) error
	RemoteCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers wired.
func NewServer(cfg config.Config, engine Answerer) *Server {
	return &Server{Cfg: cfg, Engine: engine}
}

// AskHandler answers a question, applying quality gating and provider
// fallback. It always responds 200 with an answer when the request is
// well-formed; provider failures surface as fixed answer texts, not
// HTTP errors.
func (s *Server) AskHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a := r.Header.Get("Accept"); a != "" && a != "*/*" && !strings.Contains(a, "application/json") {
			writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a}}})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			Question string   `json:"question"`
			Context  []string `json:"context"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			writeError(w, r, fmt.Errorf("%w: question required", domain.ErrInvalidArgument), map[string]string{"field": "question"})
			return
		}

		ctx := r.Context()
		answer := s.Engine.Ask(ctx, req.Question, prompt.FormatContext(req.Context))
		writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
	}
}

// StatsHandler reports provider performance, semantic scorer state and
// the remote quota position.
func (s *Server) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		out := map[string]any{
			"performance": s.Engine.PerformanceStats(ctx),
		}
		if s.UsageHistory != nil {
			history, err := s.UsageHistory(ctx, domain.ProviderOpenAI, s.Cfg.QuotaRetentionDays)
			if err != nil {
				LoggerFrom(r).Warn("usage history lookup failed", "error", err)
			} else {
				out["usage_history"] = history
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ReadyzHandler reports readiness of the configured providers.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name string `json:"name"`
		OK   bool   `json:"ok"`
		Err  string `json:"error,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := make([]check, 0, 2)
		ready := true
		run := func(name string, fn func(ctx context.Context) error) {
			if fn == nil {
				return
			}
			c := check{Name: name, OK: true}
			if err := fn(ctx); err != nil {
				c.OK = false
				c.Err = err.Error()
				ready = false
			}
			checks = append(checks, c)
		}
		run(domain.ProviderLocal, s.LocalCheck)
		run(domain.ProviderOpenAI, s.RemoteCheck)

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"ready": ready, "checks": checks})
	}
}
