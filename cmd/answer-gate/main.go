// Command answer-gate starts the LLM answer gate HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpserver "github.com/fairyhunter13/llm-answer-gate/internal/adapter/httpserver"
	"github.com/fairyhunter13/llm-answer-gate/internal/adapter/provider"
	"github.com/fairyhunter13/llm-answer-gate/internal/adapter/quota"
	"github.com/fairyhunter13/llm-answer-gate/internal/app"
	"github.com/fairyhunter13/llm-answer-gate/internal/config"
	"github.com/fairyhunter13/llm-answer-gate/internal/domain"
	"github.com/fairyhunter13/llm-answer-gate/internal/gate"
	"github.com/fairyhunter13/llm-answer-gate/internal/observability"
	"github.com/fairyhunter13/llm-answer-gate/internal/prompt"
)

const quotaCleanupInterval = 24 * time.Hour

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	ctx := context.Background()

	// Quota persistence
	store, err := quota.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("quota db open failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()
	if _, err := store.Cleanup(ctx, cfg.QuotaRetentionDays); err != nil {
		slog.Warn("quota cleanup failed", slog.Any("error", err))
	}
	go runPeriodicCleanup(ctx, store, cfg.QuotaRetentionDays)

	// Persona
	personaText := ""
	if cfg.PersonaEnabled {
		p, err := prompt.LoadPersona(cfg.PersonaFile)
		if err != nil {
			slog.Error("persona load failed", slog.String("file", cfg.PersonaFile), slog.Any("error", err))
			os.Exit(1)
		}
		personaText = p.Text
		slog.Info("persona loaded", slog.String("file", cfg.PersonaFile))
	}

	// Providers
	var (
		local, remote           domain.Provider
		localCheck, remoteCheck func(ctx context.Context) error
	)
	if cfg.LocalEnabled {
		lc := provider.NewLocal(cfg)
		local = lc
		localCheck = lc.Ping
	}
	if cfg.OpenAIEnabled && cfg.OpenAIAPIKey != "" {
		rc := provider.NewOpenAI(cfg)
		remote = rc
		remoteCheck = rc.Ping
	}
	switch cfg.ProviderMode() {
	case domain.ModeLocalOnly:
		if local == nil {
			slog.Error("LLM_MODE=local_only requires the local provider to be enabled")
			os.Exit(1)
		}
	case domain.ModeOpenAIOnly:
		if remote == nil {
			slog.Error("LLM_MODE=openai_only requires OPENAI_ENABLED and OPENAI_API_KEY")
			os.Exit(1)
		}
	}
	selfTest(ctx, local, remote)

	// Semantic similarity scorer
	var semantic *gate.SemanticScorer
	if cfg.SemanticEnabled {
		semantic, err = gate.NewSemanticScorer(cfg, provider.NewEmbedder(cfg))
		if err != nil {
			slog.Error("semantic scorer init failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("semantic scoring enabled",
			slog.String("model", cfg.EmbeddingsModel),
			slog.Float64("threshold", cfg.SemanticMinThreshold))
	}

	engine := gate.NewEngine(cfg, gate.Options{
		Local:       local,
		Remote:      remote,
		Quota:       store,
		Semantic:    semantic,
		PersonaText: personaText,
	})

	srv := httpserver.NewServer(cfg, engine)
	srv.UsageHistory = store.UsageHistory
	srv.LocalCheck = localCheck
	srv.RemoteCheck = remoteCheck

	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting",
			slog.Int("port", cfg.Port),
			slog.String("mode", cfg.Mode))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// selfTest pings the configured providers once at startup so that
// misconfigured endpoints show up in the logs immediately. Failures
// are not fatal: a provider that is down now may come back later.
func selfTest(ctx context.Context, providers ...domain.Provider) {
	for _, p := range providers {
		if p == nil {
			continue
		}
		pinger, ok := p.(interface{ Ping(ctx context.Context) error })
		if !ok {
			continue
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := pinger.Ping(pingCtx)
		cancel()
		if err != nil {
			slog.Warn("provider self-test failed", slog.String("provider", p.Name()), slog.Any("error", err))
			continue
		}
		slog.Info("provider self-test ok", slog.String("provider", p.Name()))
	}
}

func runPeriodicCleanup(ctx context.Context, store *quota.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(quotaCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := store.Cleanup(ctx, retentionDays); err != nil {
				slog.Warn("quota cleanup failed", slog.Any("error", err))
			}
		}
	}
}
