// Package providers holds the provider registry, liveness probing, and the
// router that selects and executes against one backend per request.
package providers

import (
	"context"
	"time"
)

// Class distinguishes locally hosted backends from cloud APIs.
type Class string

const (
	ClassLocal Class = "local"
	ClassCloud Class = "cloud"
)

// SecurityTier ranks how much trust a provider is granted with request
// content. Sensitive requests are routed only to TierHigh providers.
type SecurityTier string

const (
	TierHigh   SecurityTier = "high"
	TierMedium SecurityTier = "medium"
	TierLow    SecurityTier = "low"
)

// Rank orders tiers for selection tie-breaking; higher is more trusted.
func (t SecurityTier) Rank() int {
	switch t {
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// Descriptor is the static, read-mostly configuration of one provider.
// Liveness lives in the registry, refreshed by the prober.
type Descriptor struct {
	Name         string        `json:"name"`
	Class        Class         `json:"type"`
	Endpoint     string        `json:"endpoint"`
	DefaultModel string        `json:"default_model"`
	Timeout      time.Duration `json:"timeout"`
	CostPerToken float64       `json:"cost_per_token"`
	SecurityTier SecurityTier  `json:"security_tier"`
}

// ExecuteRequest is the provider-agnostic call payload.
type ExecuteRequest struct {
	Prompt      string
	Model       string
	Context     string
	Temperature float64
	MaxTokens   int
}

// ExecuteResult is the provider-agnostic call outcome. TokensUsed is zero
// when the provider does not report usage.
type ExecuteResult struct {
	Content    string
	TokensUsed int64
}

// Transport is the abstract capability each concrete vendor integration
// implements. The router never branches on provider names; all
// vendor-specific behavior lives behind this interface.
type Transport interface {
	// Execute issues one call. Implementations honor ctx cancellation;
	// the router supplies the descriptor's timeout.
	Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error)

	// HealthCheck reports whether the backend is currently reachable.
	HealthCheck(ctx context.Context) bool
}
