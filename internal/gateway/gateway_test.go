package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptwire/gateway/internal/gateway/configuration"
	gwerrors "github.com/promptwire/gateway/internal/gateway/errors"
	"github.com/promptwire/gateway/internal/gateway/providers"
	"github.com/promptwire/gateway/internal/gateway/transport"
)

// fakeTransport is a scriptable provider backend.
type fakeTransport struct {
	mu      sync.Mutex
	content string
	tokens  int64
	err     error
	calls   int
}

func (f *fakeTransport) Execute(_ context.Context, _ providers.ExecuteRequest) (*providers.ExecuteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &providers.ExecuteResult{Content: f.content, TokensUsed: f.tokens}, nil
}

func (f *fakeTransport) HealthCheck(_ context.Context) bool { return true }

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() *configuration.Config {
	cfg := configuration.DefaultConfig()
	// Rapid-fire test traffic must not trip burst detection unless a test
	// lowers the limit deliberately.
	cfg.RateLimit.Default.BurstLimit = 1000
	cfg.RateLimit.Default.TokensPerMinute = 0
	return cfg
}

func registerProvider(t *testing.T, reg *providers.Registry, name string, tier providers.SecurityTier, cost float64, ft *fakeTransport) {
	t.Helper()
	require.NoError(t, reg.Register(providers.Descriptor{
		Name:         name,
		Class:        providers.ClassCloud,
		DefaultModel: name + "-model",
		Timeout:      5 * time.Second,
		CostPerToken: cost,
		SecurityTier: tier,
	}, ft))
}

func newTestGateway(t *testing.T, cfg *configuration.Config, reg *providers.Registry) *Gateway {
	t.Helper()
	gw, err := New(cfg, reg)
	require.NoError(t, err)
	return gw
}

func TestGateway_RejectsEmptyPrompt(t *testing.T) {
	reg := providers.NewRegistry()
	registerProvider(t, reg, "p1", providers.TierHigh, 0.001, &fakeTransport{content: "ok"})
	gw := newTestGateway(t, testConfig(), reg)

	_, err := gw.Handle(context.Background(), &transport.Request{Prompt: "   "})
	require.ErrorIs(t, err, gwerrors.ErrEmptyPrompt)
	assert.Equal(t, gwerrors.ReasonInvalidRequest, gwerrors.ReasonFor(err))
}

// TestGateway_MinuteBudgetExhaustion drives one caller through its full
// per-minute request budget and verifies the next request is rejected with
// retry guidance. Cache hits still consume request quota because admission
// runs before the cache.
func TestGateway_MinuteBudgetExhaustion(t *testing.T) {
	reg := providers.NewRegistry()
	ft := &fakeTransport{content: "answer", tokens: 10}
	registerProvider(t, reg, "p1", providers.TierHigh, 0.001, ft)

	cfg := testConfig()
	cfg.RateLimit.Default.RequestsPerMinute = 60
	gw := newTestGateway(t, cfg, reg)

	ctx := context.Background()
	for i := 0; i < 60; i++ {
		_, err := gw.Handle(ctx, &transport.Request{Prompt: "same question", CallerID: "heavy-user"})
		require.NoError(t, err, "request %d should be admitted", i+1)
	}
	assert.Equal(t, 1, ft.callCount(), "repeated identical requests are served from cache")

	_, err := gw.Handle(ctx, &transport.Request{Prompt: "same question", CallerID: "heavy-user"})
	require.Error(t, err)
	require.True(t, gwerrors.IsRateLimitError(err))
	assert.Positive(t, gwerrors.GetRetryAfter(err))
	assert.LessOrEqual(t, gwerrors.GetRetryAfter(err), 60)

	// Another caller is unaffected.
	_, err = gw.Handle(ctx, &transport.Request{Prompt: "same question", CallerID: "light-user"})
	assert.NoError(t, err)
}

func TestGateway_BurstTripsCooldown(t *testing.T) {
	reg := providers.NewRegistry()
	registerProvider(t, reg, "p1", providers.TierHigh, 0.001, &fakeTransport{content: "ok"})

	cfg := testConfig()
	cfg.RateLimit.Default.BurstLimit = 5
	cfg.RateLimit.Default.CooldownSeconds = 60
	gw := newTestGateway(t, cfg, reg)

	ctx := context.Background()
	var rejected error
	for i := 0; i < 10; i++ {
		_, err := gw.Handle(ctx, &transport.Request{Prompt: fmt.Sprintf("q %d", i), CallerID: "bursty"})
		if err != nil {
			rejected = err
			break
		}
	}

	require.Error(t, rejected, "rapid-fire traffic must trip the burst limit")
	rl, ok := rejected.(*gwerrors.RateLimitError)
	require.True(t, ok)
	assert.Equal(t, "burst", rl.Scope)
	assert.Equal(t, 60, rl.RetryAfter)

	// The caller is now in the penalty box regardless of pacing.
	_, err := gw.Handle(ctx, &transport.Request{Prompt: "after trip", CallerID: "bursty"})
	require.Error(t, err)
	cool, ok := err.(*gwerrors.RateLimitError)
	require.True(t, ok)
	assert.Equal(t, "cooldown", cool.Scope)
}

// TestGateway_CacheRoundTrip verifies the second identical request is a
// cache hit: one provider call, the hit flagged, and no token usage
// recorded for it.
func TestGateway_CacheRoundTrip(t *testing.T) {
	reg := providers.NewRegistry()
	ft := &fakeTransport{content: "the answer", tokens: 42}
	registerProvider(t, reg, "p1", providers.TierHigh, 0.002, ft)
	gw := newTestGateway(t, testConfig(), reg)

	ctx := context.Background()
	first, err := gw.Handle(ctx, &transport.Request{Prompt: "what is Go", CallerID: "u1"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "the answer", first.Content)
	assert.Equal(t, int64(42), first.TokensUsed)

	second, err := gw.Handle(ctx, &transport.Request{Prompt: "what is Go", CallerID: "u1"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "the answer", second.Content)
	assert.Equal(t, 1, ft.callCount())

	// Token usage was recorded once; the hit consumed no provider tokens.
	assert.Equal(t, 42, gw.RateLimitStatus("u1").TokensThisMinute)

	stats := gw.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

// TestGateway_CacheSharedAcrossCallers verifies the cache has no caller
// dimension: a second caller issuing the same request gets the cached
// response.
func TestGateway_CacheSharedAcrossCallers(t *testing.T) {
	reg := providers.NewRegistry()
	ft := &fakeTransport{content: "shared"}
	registerProvider(t, reg, "p1", providers.TierHigh, 0.002, ft)
	gw := newTestGateway(t, testConfig(), reg)

	ctx := context.Background()
	_, err := gw.Handle(ctx, &transport.Request{Prompt: "common question", CallerID: "alice"})
	require.NoError(t, err)

	resp, err := gw.Handle(ctx, &transport.Request{Prompt: "common question", CallerID: "bob"})
	require.NoError(t, err)
	assert.True(t, resp.Cached)
	assert.Equal(t, 1, ft.callCount())
}

func TestGateway_ForceRefreshBypassesCache(t *testing.T) {
	reg := providers.NewRegistry()
	ft := &fakeTransport{content: "fresh"}
	registerProvider(t, reg, "p1", providers.TierHigh, 0.002, ft)
	gw := newTestGateway(t, testConfig(), reg)

	ctx := context.Background()
	_, err := gw.Handle(ctx, &transport.Request{Prompt: "q", CallerID: "u1"})
	require.NoError(t, err)

	resp, err := gw.Handle(ctx, &transport.Request{Prompt: "q", CallerID: "u1", ForceRefresh: true})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, 2, ft.callCount())

	// The refreshed response replaced the cached one.
	resp, err = gw.Handle(ctx, &transport.Request{Prompt: "q", CallerID: "u1"})
	require.NoError(t, err)
	assert.True(t, resp.Cached)
	assert.Equal(t, 2, ft.callCount())
}

// TestGateway_SensitiveContentRestrictsRouting verifies sensitive prompts
// are routed only to high-tier providers even when a cheaper low-tier
// provider exists, while clean prompts take the cheapest provider.
func TestGateway_SensitiveContentRestrictsRouting(t *testing.T) {
	reg := providers.NewRegistry()
	cheap := &fakeTransport{content: "from cheap", tokens: 5}
	secure := &fakeTransport{content: "from secure", tokens: 5}
	registerProvider(t, reg, "cheap-llm", providers.TierLow, 0.0001, cheap)
	registerProvider(t, reg, "secure-llm", providers.TierHigh, 0.01, secure)

	cfg := testConfig()
	cfg.Security.SensitivityThreshold = 0.4
	gw := newTestGateway(t, cfg, reg)

	ctx := context.Background()

	clean, err := gw.Handle(ctx, &transport.Request{Prompt: "summarize this meeting", CallerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "cheap-llm", clean.Provider)

	sensitive, err := gw.Handle(ctx, &transport.Request{
		Prompt:   "my password and ssn are in the attached file",
		CallerID: "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "secure-llm", sensitive.Provider)
	assert.Equal(t, 1, cheap.callCount(), "sensitive content must never reach the low-tier provider")
}

// TestGateway_SensitiveWithNoHighTierProvider verifies the request is
// rejected, not downgraded, when no trusted provider exists.
func TestGateway_SensitiveWithNoHighTierProvider(t *testing.T) {
	reg := providers.NewRegistry()
	registerProvider(t, reg, "cheap-llm", providers.TierLow, 0.0001, &fakeTransport{content: "x"})

	cfg := testConfig()
	cfg.Security.SensitivityThreshold = 0.4
	gw := newTestGateway(t, cfg, reg)

	_, err := gw.Handle(context.Background(), &transport.Request{
		Prompt:   "the password and ssn for the account",
		CallerID: "u1",
	})
	require.Error(t, err)
	assert.Equal(t, gwerrors.ReasonNoProvider, gwerrors.ReasonFor(err))
}

func TestGateway_ProviderFallback(t *testing.T) {
	reg := providers.NewRegistry()
	failing := &fakeTransport{err: fmt.Errorf("upstream down")}
	backup := &fakeTransport{content: "from backup"}
	registerProvider(t, reg, "primary", providers.TierHigh, 0.001, failing)
	registerProvider(t, reg, "backup", providers.TierHigh, 0.01, backup)
	gw := newTestGateway(t, testConfig(), reg)

	resp, err := gw.Handle(context.Background(), &transport.Request{Prompt: "q", CallerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "from backup", resp.Content)
	assert.Equal(t, "backup", resp.Provider)
}

func TestGateway_ProviderOverrideExcludesFromRouting(t *testing.T) {
	reg := providers.NewRegistry()
	disabled := &fakeTransport{content: "disabled"}
	other := &fakeTransport{content: "other"}
	registerProvider(t, reg, "disabled", providers.TierHigh, 0.001, disabled)
	registerProvider(t, reg, "other", providers.TierHigh, 0.01, other)
	gw := newTestGateway(t, testConfig(), reg)

	require.NoError(t, gw.SetProviderOverride("disabled", false))

	resp, err := gw.Handle(context.Background(), &transport.Request{Prompt: "q", CallerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "other", resp.Provider)
	assert.Zero(t, disabled.callCount())
}

func TestGateway_ClearCacheForcesReexecution(t *testing.T) {
	reg := providers.NewRegistry()
	ft := &fakeTransport{content: "v1"}
	registerProvider(t, reg, "p1", providers.TierHigh, 0.001, ft)
	gw := newTestGateway(t, testConfig(), reg)

	ctx := context.Background()
	_, err := gw.Handle(ctx, &transport.Request{Prompt: "q", CallerID: "u1"})
	require.NoError(t, err)

	removed := gw.ClearCache("")
	assert.Equal(t, 1, removed)

	resp, err := gw.Handle(ctx, &transport.Request{Prompt: "q", CallerID: "u1"})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, 2, ft.callCount())
}

func TestGateway_RateLimitOverrideLifecycle(t *testing.T) {
	reg := providers.NewRegistry()
	registerProvider(t, reg, "p1", providers.TierHigh, 0.001, &fakeTransport{content: "ok"})
	gw := newTestGateway(t, testConfig(), reg)

	rule := configuration.DefaultRule()
	rule.RequestsPerMinute = 1
	rule.BurstLimit = 1000
	gw.SetRateLimitOverride("restricted", rule)

	ctx := context.Background()
	_, err := gw.Handle(ctx, &transport.Request{Prompt: "one", CallerID: "restricted"})
	require.NoError(t, err)
	_, err = gw.Handle(ctx, &transport.Request{Prompt: "two", CallerID: "restricted"})
	require.True(t, gwerrors.IsRateLimitError(err))

	// Reset clears the window but the override rule still applies.
	gw.ResetRateLimit("restricted")
	_, err = gw.Handle(ctx, &transport.Request{Prompt: "three", CallerID: "restricted"})
	require.NoError(t, err)
	_, err = gw.Handle(ctx, &transport.Request{Prompt: "four", CallerID: "restricted"})
	require.True(t, gwerrors.IsRateLimitError(err))

	// Removing the override restores the default budget.
	gw.RemoveRateLimitOverride("restricted")
	gw.ResetRateLimit("restricted")
	_, err = gw.Handle(ctx, &transport.Request{Prompt: "five", CallerID: "restricted"})
	assert.NoError(t, err)
}

func TestGateway_KeywordUpdateAffectsRouting(t *testing.T) {
	reg := providers.NewRegistry()
	cheap := &fakeTransport{content: "cheap"}
	secure := &fakeTransport{content: "secure"}
	registerProvider(t, reg, "cheap-llm", providers.TierLow, 0.0001, cheap)
	registerProvider(t, reg, "secure-llm", providers.TierHigh, 0.01, secure)

	cfg := testConfig()
	cfg.Security.SensitivityThreshold = 0.2
	gw := newTestGateway(t, cfg, reg)

	ctx := context.Background()
	before, err := gw.Handle(ctx, &transport.Request{Prompt: "the omega project timeline", CallerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "cheap-llm", before.Provider)

	gw.UpdateKeywords("business_confidential", []string{"omega project"})

	after, err := gw.Handle(ctx, &transport.Request{Prompt: "the omega project budget", CallerID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "secure-llm", after.Provider)
}

func TestGateway_InvalidConfigRejected(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.MaxEntries = 0

	_, err := New(cfg, providers.NewRegistry())
	assert.Error(t, err)
}

func TestGateway_AssignsTraceAndTiming(t *testing.T) {
	reg := providers.NewRegistry()
	registerProvider(t, reg, "p1", providers.TierHigh, 0.001, &fakeTransport{content: "ok", tokens: 7})
	gw := newTestGateway(t, testConfig(), reg)

	req := &transport.Request{Prompt: "q", CallerID: "u1"}
	resp, err := gw.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, req.TraceID)
	assert.GreaterOrEqual(t, resp.ProcessingTime, time.Duration(0))
}
