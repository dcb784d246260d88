package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/llm-answer-gate/internal/adapter/httpserver"
	"github.com/fairyhunter13/llm-answer-gate/internal/config"
	"github.com/fairyhunter13/llm-answer-gate/internal/domain"
	"github.com/fairyhunter13/llm-answer-gate/internal/gate"
)

type staticAnswerer struct{}

func (staticAnswerer) Ask(_ domain.Context, _, _ string) string { return "ok answer" }
func (staticAnswerer) PerformanceStats(_ domain.Context) gate.PerformanceReport {
	return gate.PerformanceReport{Mode: "fallback"}
}

func testRouter() http.Handler {
	cfg := config.Config{RateLimitPerMin: 100}
	srv := httpserver.NewServer(cfg, staticAnswerer{})
	return BuildRouter(cfg, srv)
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AskRoute(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"hello"}`))
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok answer")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_RateLimit(t *testing.T) {
	t.Parallel()

	cfg := config.Config{RateLimitPerMin: 2}
	srv := httpserver.NewServer(cfg, staticAnswerer{})
	router := BuildRouter(cfg, srv)

	var lastCode int
	var lastBody string
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"hello"}`))
		req.RemoteAddr = "10.0.0.2:1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		lastCode = rec.Code
		lastBody = rec.Body.String()
	}

	assert.Equal(t, http.StatusTooManyRequests, lastCode)
	assert.Contains(t, lastBody, "Slow down")
}
