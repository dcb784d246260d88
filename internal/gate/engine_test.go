package gate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/llm-answer-gate/internal/config"
	"github.com/fairyhunter13/llm-answer-gate/internal/domain"
	"github.com/fairyhunter13/llm-answer-gate/internal/prompt"
)

// scriptedProvider returns canned responses in order, repeating the
// last one once the script runs out.
type scriptedProvider struct {
	name      string
	responses []string
	err       error

	mu    sync.Mutex
	calls int
}

func (p *scriptedProvider) Name() string {
	if p.name == "" {
		return "scripted"
	}
	return p.name
}

func (p *scriptedProvider) Complete(_ domain.Context, _, _ string, _ int, _ float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	i := p.calls - 1
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return p.responses[i], nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type memQuota struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMemQuota() *memQuota { return &memQuota{counts: make(map[string]int)} }

func (q *memQuota) TodayUsage(_ domain.Context, provider string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts[provider], nil
}

func (q *memQuota) Increment(_ domain.Context, provider string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.counts[provider]++
	return nil
}

func (q *memQuota) Cleanup(_ domain.Context, _ int) (int64, error) { return 0, nil }

func engineTestConfig() config.Config {
	return config.Config{
		AppEnv:            "test",
		BotName:           "answerbot",
		Mode:              "fallback",
		LocalMaxAttempts:  3,
		OpenAIMaxAttempts: 2,
		OpenAIDailyLimit:  10,
		MaxTokens:         150,
		Temperature:       0.7,
	}
}

func TestEngine_NameIntercept(t *testing.T) {
	t.Parallel()

	local := &scriptedProvider{name: domain.ProviderLocal, responses: []string{"should not be used"}}
	e := NewEngine(engineTestConfig(), Options{Local: local})

	got := e.Ask(context.Background(), "What's your name?", "")
	assert.Equal(t, "I'm answerbot!", got)
	assert.Zero(t, local.callCount())
}

func TestEngine_EmptyQuestion(t *testing.T) {
	t.Parallel()

	local := &scriptedProvider{name: domain.ProviderLocal, responses: []string{"should not be used"}}
	e := NewEngine(engineTestConfig(), Options{Local: local})

	assert.Equal(t, prompt.MsgNoResponse, e.Ask(context.Background(), "   ", ""))
	assert.Zero(t, local.callCount())
}

func TestEngine_AcceptsGoodLocalAnswer(t *testing.T) {
	t.Parallel()

	local := &scriptedProvider{name: domain.ProviderLocal, responses: []string{"Paris is the capital of France."}}
	remote := &scriptedProvider{name: domain.ProviderOpenAI, responses: []string{"remote answer"}}
	quota := newMemQuota()
	e := NewEngine(engineTestConfig(), Options{Local: local, Remote: remote, Quota: quota})

	got := e.Ask(context.Background(), "What is the capital of France?", "")
	assert.Equal(t, "Paris is the capital of France.", got)
	assert.Equal(t, 1, local.callCount())
	assert.Zero(t, remote.callCount())
	assert.Zero(t, quota.counts[domain.ProviderOpenAI])
}

func TestEngine_EscalatesDontKnowToRemote(t *testing.T) {
	t.Parallel()

	local := &scriptedProvider{name: domain.ProviderLocal, responses: []string{"I don't know"}}
	remote := &scriptedProvider{name: domain.ProviderOpenAI, responses: []string{"The capital of France is Paris."}}
	quota := newMemQuota()
	e := NewEngine(engineTestConfig(), Options{Local: local, Remote: remote, Quota: quota})

	got := e.Ask(context.Background(), "What is the capital of France?", "")
	assert.Equal(t, "The capital of France is Paris.", got)
	assert.Equal(t, 1, local.callCount())
	assert.Equal(t, 1, remote.callCount())
	assert.Equal(t, 1, quota.counts[domain.ProviderOpenAI])
}

func TestEngine_EmptyLocalExhaustsRetries(t *testing.T) {
	t.Parallel()

	local := &scriptedProvider{name: domain.ProviderLocal, responses: []string{""}}
	e := NewEngine(engineTestConfig(), Options{Local: local})

	got := e.Ask(context.Background(), "What is the weather like today?", "")
	assert.Equal(t, prompt.MsgNoResponse, got)
	assert.Equal(t, 3, local.callCount())
}

func TestEngine_StrictValidationWithoutRemote(t *testing.T) {
	t.Parallel()

	// 500 chars exceed the strict budget that applies when no remote
	// provider can salvage the answer.
	local := &scriptedProvider{name: domain.ProviderLocal, responses: []string{strings.Repeat("A", 500)}}
	e := NewEngine(engineTestConfig(), Options{Local: local})

	got := e.Ask(context.Background(), "hi", "")
	assert.Equal(t, prompt.MsgTooComplex, got)
}

func TestEngine_LenientValidationWithRemote(t *testing.T) {
	t.Parallel()

	// The same 500-char answer passes the lenient budget when a
	// remote net exists, so escalation is not needed.
	long := strings.Repeat("A", 500)
	local := &scriptedProvider{name: domain.ProviderLocal, responses: []string{long}}
	remote := &scriptedProvider{name: domain.ProviderOpenAI, responses: []string{"unused"}}
	e := NewEngine(engineTestConfig(), Options{Local: local, Remote: remote, Quota: newMemQuota()})

	got := e.Ask(context.Background(), "hi", "")
	assert.Equal(t, long, got)
	assert.Zero(t, remote.callCount())
}

func TestEngine_QuotaLimitMessage(t *testing.T) {
	t.Parallel()

	local := &scriptedProvider{name: domain.ProviderLocal, responses: []string{"I don't know"}}
	remote := &scriptedProvider{name: domain.ProviderOpenAI, responses: []string{"should not be called"}}
	quota := newMemQuota()
	quota.counts[domain.ProviderOpenAI] = 10

	e := NewEngine(engineTestConfig(), Options{Local: local, Remote: remote, Quota: quota})

	got := e.Ask(context.Background(), "What is the capital of France?", "")
	assert.Equal(t, prompt.MsgOpenAILimitReached, got)
	assert.Zero(t, remote.callCount())
	assert.Equal(t, 10, quota.counts[domain.ProviderOpenAI])
}

func TestEngine_UnlimitedQuota(t *testing.T) {
	t.Parallel()

	cfg := engineTestConfig()
	cfg.OpenAIDailyLimit = 0

	local := &scriptedProvider{name: domain.ProviderLocal, responses: []string{"I don't know"}}
	remote := &scriptedProvider{name: domain.ProviderOpenAI, responses: []string{"It is Paris."}}
	quota := newMemQuota()
	quota.counts[domain.ProviderOpenAI] = 10000

	e := NewEngine(cfg, Options{Local: local, Remote: remote, Quota: quota})

	got := e.Ask(context.Background(), "What is the capital of France?", "")
	assert.Equal(t, "It is Paris.", got)
	assert.Equal(t, 1, remote.callCount())
}

func TestEngine_LocalErrorSurfacesInLocalOnlyMode(t *testing.T) {
	t.Parallel()

	cfg := engineTestConfig()
	cfg.Mode = "local_only"
	local := &scriptedProvider{name: domain.ProviderLocal, err: errors.New("connection refused")}
	e := NewEngine(cfg, Options{Local: local})

	got := e.Ask(context.Background(), "What is the capital of France?", "")
	assert.Contains(t, got, "Error calling LLM")
	assert.Contains(t, got, "connection refused")
}

func TestEngine_FallsBackOnLocalError(t *testing.T) {
	t.Parallel()

	local := &scriptedProvider{name: domain.ProviderLocal, err: errors.New("connection refused")}
	remote := &scriptedProvider{name: domain.ProviderOpenAI, responses: []string{"The capital of France is Paris."}}
	e := NewEngine(engineTestConfig(), Options{Local: local, Remote: remote, Quota: newMemQuota()})

	got := e.Ask(context.Background(), "What is the capital of France?", "")
	assert.Equal(t, "The capital of France is Paris.", got)
}

func TestEngine_RemoteFailureReturnsLocalText(t *testing.T) {
	t.Parallel()

	local := &scriptedProvider{name: domain.ProviderLocal, responses: []string{"I don't know"}}
	remote := &scriptedProvider{name: domain.ProviderOpenAI, err: errors.New("upstream down")}
	e := NewEngine(engineTestConfig(), Options{Local: local, Remote: remote, Quota: newMemQuota()})

	// The flagged local answer still beats surfacing a hard failure.
	got := e.Ask(context.Background(), "What is the capital of France?", "")
	assert.Equal(t, "I don't know", got)
}

func TestEngine_OpenAIOnlyModeSkipsLocal(t *testing.T) {
	t.Parallel()

	cfg := engineTestConfig()
	cfg.Mode = "openai_only"
	local := &scriptedProvider{name: domain.ProviderLocal, responses: []string{"local answer"}}
	remote := &scriptedProvider{name: domain.ProviderOpenAI, responses: []string{"It is Paris."}}
	e := NewEngine(cfg, Options{Local: local, Remote: remote, Quota: newMemQuota()})

	got := e.Ask(context.Background(), "What is the capital of France?", "")
	assert.Equal(t, "It is Paris.", got)
	assert.Zero(t, local.callCount())
}

func TestEngine_NoLocalProviderEscalatesImmediately(t *testing.T) {
	t.Parallel()

	remote := &scriptedProvider{name: domain.ProviderOpenAI, responses: []string{"The capital of France is Paris."}}
	e := NewEngine(engineTestConfig(), Options{Remote: remote, Quota: newMemQuota()})

	got := e.Ask(context.Background(), "What is the capital of France?", "")
	assert.Equal(t, "The capital of France is Paris.", got)
	assert.Equal(t, 1, remote.callCount())
}

func TestEngine_PerformanceStats(t *testing.T) {
	t.Parallel()

	local := &scriptedProvider{name: domain.ProviderLocal, responses: []string{"I don't know"}}
	remote := &scriptedProvider{name: domain.ProviderOpenAI, responses: []string{"The capital of France is Paris."}}
	quota := newMemQuota()
	e := NewEngine(engineTestConfig(), Options{Local: local, Remote: remote, Quota: quota})

	ctx := context.Background()
	e.Ask(ctx, "What is the capital of France?", "")

	rep := e.PerformanceStats(ctx)
	require.Equal(t, "fallback", rep.Mode)
	assert.True(t, rep.Local.Enabled)
	assert.True(t, rep.OpenAI.Enabled)
	assert.Equal(t, int64(1), rep.Local.TotalRequests)
	assert.Equal(t, int64(1), rep.OpenAI.TotalRequests)
	assert.Equal(t, 1, rep.Quota.TodayUsage)
	assert.Equal(t, 10, rep.Quota.DailyLimit)
	assert.Equal(t, 9, rep.Quota.Remaining)
	assert.False(t, rep.Quota.Unlimited)
	assert.False(t, rep.Semantic.Available)
}

func TestIsDontKnowResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		response string
		want     bool
	}{
		{"I don't know", true},
		{"i dont know about that", true},
		{"I'm not sure.", true},
		{"No idea, sorry!", true},
		{"I can't help with that", true},
		{"I don't know the exact figure, but the population is roughly sixty seven million people as of the last census", false},
		{"Paris.", false},
		{"It is not sure whether this holds", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.response, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, isDontKnowResponse(tt.response))
		})
	}
}
