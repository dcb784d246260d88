// Package app wires configuration, adapters and routes together.
package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/llm-answer-gate/internal/adapter/httpserver"
	"github.com/fairyhunter13/llm-answer-gate/internal/config"
	"github.com/fairyhunter13/llm-answer-gate/internal/observability"
	"github.com/fairyhunter13/llm-answer-gate/internal/prompt"
)

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(2 * time.Minute))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	// Rate limit question traffic per client IP. The limit response
	// mirrors the fixed answer texts rather than a bare 429 body.
	r.Group(func(gr chi.Router) {
		gr.Use(httprate.Limit(
			cfg.RateLimitPerMin,
			1*time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(rateLimitHandler),
		))
		gr.Post("/v1/ask", srv.AskHandler())
	})

	// Read-only endpoints
	r.Get("/v1/stats", srv.StatsHandler())

	// Health and metrics
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	return httpserver.SecurityHeaders(r)
}

func rateLimitHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{"answer": prompt.MsgRateLimited})
}
