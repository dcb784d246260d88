// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/fairyhunter13/llm-answer-gate/internal/domain"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"dev"`
	Port    int    `env:"PORT" envDefault:"8080"`
	BotName string `env:"BOT_NAME" envDefault:"answerbot"`

	// Mode selects the provider strategy: fallback, local_only, openai_only.
	Mode string `env:"LLM_MODE" envDefault:"fallback"`

	// Local provider (Ollama-style OpenAI-compatible endpoint).
	LocalEnabled     bool   `env:"LLM_ENABLED" envDefault:"true"`
	LocalBaseURL     string `env:"LLM_BASE_URL" envDefault:"http://localhost:11434/v1"`
	LocalAPIKey      string `env:"LLM_API_KEY" envDefault:"ollama"`
	LocalModel       string `env:"LLM_MODEL" envDefault:"qwen2.5:7b"`
	LocalMaxAttempts int    `env:"LLM_MAX_ATTEMPTS" envDefault:"3"`

	// Remote provider (OpenAI).
	OpenAIEnabled     bool   `env:"OPENAI_ENABLED" envDefault:"false"`
	OpenAIBaseURL     string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	OpenAIModel       string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIMaxAttempts int    `env:"OPENAI_MAX_ATTEMPTS" envDefault:"2"`
	// OpenAIDailyLimit caps remote calls per calendar day. 0 or negative
	// means unlimited.
	OpenAIDailyLimit int `env:"OPENAI_DAILY_LIMIT" envDefault:"10"`

	// Shared completion parameters.
	MaxTokens   int     `env:"LLM_MAX_TOKENS" envDefault:"150"`
	Temperature float64 `env:"LLM_TEMPERATURE" envDefault:"0.7"`

	// Quota persistence.
	DatabasePath       string `env:"DATABASE_PATH" envDefault:"data/quota.db"`
	QuotaRetentionDays int    `env:"QUOTA_RETENTION_DAYS" envDefault:"30"`

	// Persona: optional custom persona text injected into the system prompt.
	PersonaEnabled bool   `env:"PERSONA_ENABLED" envDefault:"false"`
	PersonaFile    string `env:"PERSONA_FILE" envDefault:""`

	// Semantic similarity scoring.
	SemanticEnabled           bool     `env:"SEMANTIC_SIMILARITY_ENABLED" envDefault:"false"`
	SemanticMinThreshold      float64  `env:"SEMANTIC_SIMILARITY_MIN_THRESHOLD" envDefault:"0.3"`
	SemanticSimilarityWeight  float64  `env:"SEMANTIC_SIMILARITY_WEIGHT" envDefault:"0.4"`
	SemanticContextWeight     float64  `env:"SEMANTIC_CONTEXT_WEIGHT" envDefault:"0.2"`
	SemanticContextEnabled    bool     `env:"SEMANTIC_CONTEXT_ENABLED" envDefault:"true"`
	SemanticEntityBoost       float64  `env:"SEMANTIC_ENTITY_BOOST" envDefault:"1.2"`
	SemanticCacheSize         int      `env:"SEMANTIC_CACHE_SIZE" envDefault:"1000"`
	SemanticTechnicalKeywords []string `env:"SEMANTIC_TECHNICAL_KEYWORDS" envSeparator:"," envDefault:"code,function,python,javascript,api,database,server,test"`

	// Embeddings endpoint (Ollama-style) used by the semantic scorer.
	EmbeddingsBaseURL string `env:"EMBEDDINGS_BASE_URL" envDefault:"http://localhost:11434"`
	EmbeddingsModel   string `env:"EMBEDDINGS_MODEL" envDefault:"nomic-embed-text"`

	// HTTP surface.
	RateLimitPerMin       int           `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"120s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Provider HTTP backoff configuration.
	AIBackoffMaxElapsedTime  time.Duration `env:"AI_BACKOFF_MAX_ELAPSED_TIME" envDefault:"60s"`
	AIBackoffInitialInterval time.Duration `env:"AI_BACKOFF_INITIAL_INTERVAL" envDefault:"1s"`
	AIBackoffMaxInterval     time.Duration `env:"AI_BACKOFF_MAX_INTERVAL" envDefault:"10s"`
	AIBackoffMultiplier      float64       `env:"AI_BACKOFF_MULTIPLIER" envDefault:"1.5"`
}

// Load parses environment variables into a Config and validates
// interdependent fields, failing fast on inconsistencies.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field invariants.
func (c Config) Validate() error {
	if !domain.Mode(c.Mode).Valid() {
		return fmt.Errorf("%w: unknown LLM_MODE %q", domain.ErrInvalidArgument, c.Mode)
	}
	if c.PersonaEnabled {
		if c.PersonaFile == "" {
			return fmt.Errorf("%w: PERSONA_ENABLED requires PERSONA_FILE", domain.ErrInvalidArgument)
		}
		if _, err := os.Stat(c.PersonaFile); err != nil {
			return fmt.Errorf("%w: persona file %q: %v", domain.ErrInvalidArgument, c.PersonaFile, err)
		}
	}
	for name, w := range map[string]float64{
		"SEMANTIC_SIMILARITY_MIN_THRESHOLD": c.SemanticMinThreshold,
		"SEMANTIC_SIMILARITY_WEIGHT":        c.SemanticSimilarityWeight,
		"SEMANTIC_CONTEXT_WEIGHT":           c.SemanticContextWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: %s must be in [0,1], got %v", domain.ErrInvalidArgument, name, w)
		}
	}
	if c.SemanticEntityBoost < 1 {
		return fmt.Errorf("%w: SEMANTIC_ENTITY_BOOST must be >= 1, got %v", domain.ErrInvalidArgument, c.SemanticEntityBoost)
	}
	if c.SemanticEnabled && c.SemanticCacheSize <= 0 {
		return fmt.Errorf("%w: SEMANTIC_CACHE_SIZE must be positive when semantic scoring is enabled", domain.ErrInvalidArgument)
	}
	if c.LocalMaxAttempts < 1 || c.OpenAIMaxAttempts < 1 {
		return fmt.Errorf("%w: provider attempt budgets must be >= 1", domain.ErrInvalidArgument)
	}
	return nil
}

// ProviderMode returns the configured mode as a typed value.
func (c Config) ProviderMode() domain.Mode { return domain.Mode(c.Mode) }

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// GetAIBackoffConfig returns backoff configuration appropriate for the
// current environment. Test environments use much shorter timeouts.
func (c Config) GetAIBackoffConfig() (maxElapsedTime, initialInterval, maxInterval time.Duration, multiplier float64) {
	if c.IsTest() {
		return 2 * time.Second, 50 * time.Millisecond, 500 * time.Millisecond, 2.0
	}
	return c.AIBackoffMaxElapsedTime, c.AIBackoffInitialInterval, c.AIBackoffMaxInterval, c.AIBackoffMultiplier
}
