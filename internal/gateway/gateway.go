// Package gateway composes the rate limiter, response cache, content
// security classifier, and provider router into the request pipeline every
// outbound LLM call flows through.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promptwire/gateway/internal/gateway/cache"
	"github.com/promptwire/gateway/internal/gateway/configuration"
	gwerrors "github.com/promptwire/gateway/internal/gateway/errors"
	"github.com/promptwire/gateway/internal/gateway/providers"
	"github.com/promptwire/gateway/internal/gateway/ratelimit"
	"github.com/promptwire/gateway/internal/gateway/security"
	"github.com/promptwire/gateway/internal/gateway/transport"
)

// Gateway owns one instance of each pipeline component. Construct one per
// process and inject it into request handlers; there is no ambient global
// state, so tests can build isolated instances.
type Gateway struct {
	cfg *configuration.Config

	limiter    *ratelimit.Limiter
	cache      *cache.Store
	classifier *security.Classifier
	registry   *providers.Registry
	router     *providers.Router
	prober     *providers.Prober

	handler transport.Handler
	logger  *slog.Logger
}

// New assembles the pipeline: rate limiter admission wraps the cache,
// which wraps content classification, which wraps the routing handler.
// Cache hits therefore return before classification or any provider call,
// and admissions are counted before anything downstream runs.
func New(cfg *configuration.Config, registry *providers.Registry) (*Gateway, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway configuration: %w", err)
	}

	limiter := ratelimit.NewLimiter(cfg.RateLimit)
	store := cache.NewStore(cfg.Cache)
	classifier := security.NewClassifier(cfg.Security.SensitivityThreshold)
	router := providers.NewRouter(registry)
	prober := providers.NewProber(registry, configuration.DefaultProbeInterval)

	handler := transport.Chain(router.Handler(),
		ratelimit.NewMiddleware(limiter),
		cache.NewMiddleware(store),
		security.NewMiddleware(classifier, registry),
	)

	return &Gateway{
		cfg:        cfg,
		limiter:    limiter,
		cache:      store,
		classifier: classifier,
		registry:   registry,
		router:     router,
		prober:     prober,
		handler:    handler,
		logger:     slog.Default().With("component", "gateway"),
	}, nil
}

// Start launches the background tasks: the cache sweep and the provider
// liveness prober.
func (g *Gateway) Start() {
	g.cache.Start()
	g.prober.Start()
}

// Stop terminates background tasks and waits for them to finish.
func (g *Gateway) Stop() {
	g.prober.Stop()
	g.cache.Stop()
}

// Handle processes one request through the full pipeline. The request is
// validated and normalized first; a trace id is assigned when absent.
func (g *Gateway) Handle(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, gwerrors.ErrEmptyPrompt
	}
	req.Normalize()
	if req.TraceID == "" {
		req.TraceID = uuid.New().String()
	}

	start := time.Now()
	resp, err := g.handler.Handle(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		g.logger.Warn("request rejected",
			"trace_id", req.TraceID,
			"caller_prefix", callerPrefix(req.CallerID),
			"reason", gwerrors.ReasonFor(err),
			"elapsed", elapsed)
		return nil, err
	}

	resp.ProcessingTime = elapsed
	g.logger.Info("request served",
		"trace_id", req.TraceID,
		"caller_prefix", callerPrefix(req.CallerID),
		"provider", resp.Provider,
		"cached", resp.Cached,
		"tokens", resp.TokensUsed,
		"elapsed", elapsed)
	return resp, nil
}

// CacheStats reports cache health for the admin surface.
func (g *Gateway) CacheStats() cache.Stats { return g.cache.Stats() }

// ClearCache removes cache entries, all of them when pattern is empty.
func (g *Gateway) ClearCache(pattern string) int { return g.cache.Invalidate(pattern) }

// RateLimitStatus reports a caller's current utilization without mutating
// limiter state.
func (g *Gateway) RateLimitStatus(callerID string) ratelimit.Status {
	return g.limiter.Status(callerID, "")
}

// SetRateLimitOverride installs a caller-specific rule.
func (g *Gateway) SetRateLimitOverride(callerID string, rule configuration.RuleConfig) {
	g.limiter.SetOverride(callerID, rule)
}

// RemoveRateLimitOverride removes a caller-specific rule.
func (g *Gateway) RemoveRateLimitOverride(callerID string) {
	g.limiter.RemoveOverride(callerID)
}

// ResetRateLimit clears one caller's state, or every caller's when
// callerID is empty.
func (g *Gateway) ResetRateLimit(callerID string) {
	if callerID == "" {
		g.limiter.ResetAll()
		return
	}
	g.limiter.Reset(callerID)
}

// RateLimitStats reports limiter-wide health.
func (g *Gateway) RateLimitStats() ratelimit.Stats { return g.limiter.GetStats() }

// UpdateKeywords adds terms to a classifier category (additive only).
func (g *Gateway) UpdateKeywords(category string, terms []string) {
	g.classifier.UpdateKeywords(category, terms)
}

// Keywords returns the classifier's current keyword set.
func (g *Gateway) Keywords() map[string][]string { return g.classifier.Keywords() }

// ListProviders reports each provider's configuration and liveness.
func (g *Gateway) ListProviders() []providers.ProviderStatus { return g.registry.List() }

// SetProviderOverride pins a provider's availability.
func (g *Gateway) SetProviderOverride(name string, available bool) error {
	return g.registry.SetOverride(name, available)
}

// ClearProviderOverride returns a provider to probe-driven availability.
func (g *Gateway) ClearProviderOverride(name string) error {
	return g.registry.ClearOverride(name)
}

func callerPrefix(callerID string) string {
	const prefixLen = 8
	if len(callerID) <= prefixLen {
		return callerID
	}
	return callerID[:prefixLen]
}
