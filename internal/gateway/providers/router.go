package providers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gwerrors "github.com/promptwire/gateway/internal/gateway/errors"
	"github.com/promptwire/gateway/internal/gateway/transport"
)

// Router selects one provider from the request's allow-list and executes
// the call, falling back once to another eligible provider on failure.
//
// Selection policy: an explicitly requested provider wins when it is
// allowed and available; otherwise the cheapest available allowed provider
// wins, ties broken by higher security tier. The router never inspects why
// an allow-list was restricted.
type Router struct {
	registry *Registry
	logger   *slog.Logger
}

// NewRouter creates a router over a registry.
func NewRouter(registry *Registry) *Router {
	return &Router{
		registry: registry,
		logger:   slog.Default().With("component", "router"),
	}
}

// Handler returns the router as the pipeline's core handler.
func (r *Router) Handler() transport.Handler {
	return transport.HandlerFunc(r.Route)
}

// Route executes a request against the best eligible provider. On
// transport failure or timeout the failing provider is marked unavailable
// and selection is retried once among the remaining eligible providers.
// Fails closed: errors propagate to the caller.
func (r *Router) Route(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	attempted := make(map[string]bool)

	var lastExecErr *gwerrors.ProviderExecutionError
	for attempt := 0; attempt < 2; attempt++ {
		reg := r.selectProvider(req, attempted)
		if reg == nil {
			if lastExecErr != nil && attempt > 0 {
				// A provider was tried and failed with nothing left to
				// fall back to.
				return nil, lastExecErr
			}
			return nil, &gwerrors.NoEligibleProviderError{
				Requested: req.Provider,
				Allowed:   req.AllowedProviders,
			}
		}

		name := reg.descriptor.Name
		attempted[name] = true

		resp, err := r.execute(ctx, reg, req)
		if err == nil {
			return resp, nil
		}

		r.registry.markUnavailable(name)
		r.logger.Warn("provider execution failed, attempting fallback",
			"provider", name,
			"trace_id", req.TraceID,
			"timeout", errors.Is(err, context.DeadlineExceeded),
			"error", err)

		lastExecErr = &gwerrors.ProviderExecutionError{
			Provider: name,
			Model:    modelFor(reg, req),
			Timeout:  errors.Is(err, context.DeadlineExceeded),
			Err:      err,
		}
	}

	return nil, lastExecErr
}

// selectProvider picks the next candidate, skipping already-attempted
// providers. Returns nil when no eligible provider remains.
func (r *Router) selectProvider(req *transport.Request, attempted map[string]bool) *registered {
	// Explicit preference first, when allowed and available.
	if req.Provider != "" && !attempted[req.Provider] && contains(req.AllowedProviders, req.Provider) {
		if reg, err := r.registry.get(req.Provider); err == nil && reg.isAvailable() {
			return reg
		}
	}

	// Cheapest available allowed provider, ties to the higher tier.
	var best *registered
	for _, name := range req.AllowedProviders {
		if attempted[name] {
			continue
		}
		reg, err := r.registry.get(name)
		if err != nil || !reg.isAvailable() {
			continue
		}
		if best == nil || cheaper(reg, best) {
			best = reg
		}
	}
	return best
}

// cheaper orders candidates by cost-per-token ascending, then security
// tier descending.
func cheaper(a, b *registered) bool {
	if a.descriptor.CostPerToken != b.descriptor.CostPerToken {
		return a.descriptor.CostPerToken < b.descriptor.CostPerToken
	}
	return a.descriptor.SecurityTier.Rank() > b.descriptor.SecurityTier.Rank()
}

// execute issues the provider call under the descriptor's timeout and
// assembles the normalized response with computed cost.
func (r *Router) execute(ctx context.Context, reg *registered, req *transport.Request) (*transport.Response, error) {
	timeout := reg.descriptor.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := reg.transport.Execute(callCtx, ExecuteRequest{
		Prompt:      req.Prompt,
		Model:       modelFor(reg, req),
		Context:     req.Context,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	return &transport.Response{
		Content:        result.Content,
		Provider:       reg.descriptor.Name,
		TokensUsed:     result.TokensUsed,
		Cost:           float64(result.TokensUsed) * reg.descriptor.CostPerToken,
		ProcessingTime: time.Since(start),
	}, nil
}

func modelFor(reg *registered, req *transport.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return reg.descriptor.DefaultModel
}

func contains(list []string, name string) bool {
	for _, item := range list {
		if item == name {
			return true
		}
	}
	return false
}
