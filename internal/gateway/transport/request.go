// Package transport defines the normalized request/response types and the
// composable handler pipeline every gateway query flows through.
package transport

import "time"

// Default sampling parameters applied when the caller leaves them unset.
const (
	// DefaultTemperature is the sampling temperature used when none is
	// given. Applied by the interface layer, which can tell an absent
	// temperature from an explicit zero.
	DefaultTemperature = 0.7

	// DefaultMaxTokens caps output length when the caller does not specify one.
	DefaultMaxTokens = 1024

	// AnonymousCaller identifies requests that arrive without a caller id.
	AnonymousCaller = "anonymous"
)

// Request is a normalized gateway request. It is immutable once admitted:
// middleware may annotate the routing fields (AllowedProviders, Sensitive)
// before the routing handler runs, but never rewrites the caller's inputs.
type Request struct {
	// Prompt is the text sent to the selected provider. Required.
	Prompt string `json:"prompt"`

	// Provider optionally names a preferred provider. The router honors it
	// only when the provider is available and inside the allow-list.
	Provider string `json:"provider,omitempty"`

	// Model optionally overrides the provider's default model.
	Model string `json:"model,omitempty"`

	// Context is optional supplementary text passed alongside the prompt.
	Context string `json:"context,omitempty"`

	// CallerID identifies the caller for rate-limit accounting.
	// Empty means AnonymousCaller.
	CallerID string `json:"caller_id,omitempty"`

	// Sampling parameters.
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`

	// ForceRefresh bypasses the cache lookup (the fresh result is still
	// stored for subsequent callers).
	ForceRefresh bool `json:"force_refresh,omitempty"`

	// TraceID correlates log lines for one request.
	TraceID string `json:"trace_id,omitempty"`

	// AllowedProviders is the allow-list derived from content
	// classification. Populated by the security middleware; the router
	// never selects outside it and is agnostic to why it was restricted.
	AllowedProviders []string `json:"-"`

	// Sensitive marks requests whose prompt content must never be logged.
	Sensitive bool `json:"-"`
}

// Normalize fills defaulted fields in place and returns the request.
// Temperature is left untouched: zero is a meaningful value (deterministic
// sampling), so in-band defaulting cannot distinguish it from absent.
func (r *Request) Normalize() *Request {
	if r.CallerID == "" {
		r.CallerID = AnonymousCaller
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	return r
}

// Response is the normalized gateway response. Produced once per request
// and never mutated after return.
type Response struct {
	// Content is the provider's generated text.
	Content string `json:"response"`

	// Provider names the provider that actually served the request.
	Provider string `json:"provider"`

	// TokensUsed is the provider-reported token count, zero if unreported.
	TokensUsed int64 `json:"tokens_used"`

	// Cost is the computed charge in USD (tokens x cost-per-token).
	Cost float64 `json:"cost"`

	// ProcessingTime is the end-to-end handling duration.
	ProcessingTime time.Duration `json:"-"`

	// Cached reports whether the response was served from the cache.
	Cached bool `json:"cached"`
}

// Clone returns a shallow copy, used when a cached response is handed to a
// new request so per-request flags never leak between callers.
func (r *Response) Clone() *Response {
	cp := *r
	return &cp
}
