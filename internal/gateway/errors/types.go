// Package errors defines the gateway's error taxonomy: typed failures for
// rate limiting, provider selection, provider execution, and internal
// bookkeeping, plus classification helpers used by the HTTP surface.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Reason labels the structured rejection category surfaced to callers.
type Reason string

const (
	// ReasonRateLimited indicates a caller or global budget was exhausted.
	// Recoverable; the error carries a retry-after hint.
	ReasonRateLimited Reason = "rate_limited"

	// ReasonNoProvider indicates the allow-list was empty or every eligible
	// provider was unavailable. Surfaced as service-unavailable.
	ReasonNoProvider Reason = "no_provider"

	// ReasonProviderFailure indicates the selected provider call failed or
	// timed out after the fallback attempt was exhausted.
	ReasonProviderFailure Reason = "provider_failure"

	// ReasonInvalidRequest indicates the inbound request failed validation.
	ReasonInvalidRequest Reason = "invalid_request"

	// ReasonInternal indicates an unexpected fault inside gateway
	// bookkeeping logic.
	ReasonInternal Reason = "internal"
)

// Sentinel errors for consistent comparison with errors.Is.
var (
	// ErrCacheMiss indicates the fingerprint was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrUnknownProvider indicates a provider name with no registration.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrProviderUnavailable indicates the provider failed its liveness
	// probe or is manually disabled.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrEmptyPrompt indicates a request arrived without prompt text.
	ErrEmptyPrompt = errors.New("prompt must not be empty")
)

// RateLimitError reports an exhausted throughput budget with retry timing.
// Scope distinguishes which budget rejected the request.
type RateLimitError struct {
	CallerID   string `json:"caller_id"`
	Scope      string `json:"scope"`       // "cooldown"|"burst"|"minute"|"hour"|"tokens"|"global"
	Limit      int    `json:"limit"`       // Budget that was exceeded
	RetryAfter int    `json:"retry_after"` // Seconds to wait before retrying
}

// Error returns the rate limit rejection with retry guidance.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded (%s) for %s, retry after %d seconds", e.Scope, e.CallerID, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (%s) for %s", e.Scope, e.CallerID)
}

// GetRetryAfter returns the suggested backoff duration.
func (e *RateLimitError) GetRetryAfter() time.Duration {
	if e.RetryAfter > 0 {
		return time.Duration(e.RetryAfter) * time.Second
	}
	return 0
}

// NoEligibleProviderError indicates provider selection found no candidate:
// the allow-list was empty, every allowed provider was unavailable, or all
// fallback attempts were already spent.
type NoEligibleProviderError struct {
	Requested string   `json:"requested,omitempty"` // Caller's provider preference, if any
	Allowed   []string `json:"allowed"`             // Allow-list the selection ran against
}

func (e *NoEligibleProviderError) Error() string {
	if e.Requested != "" {
		return fmt.Sprintf("no eligible provider (requested %q among %d allowed)", e.Requested, len(e.Allowed))
	}
	return fmt.Sprintf("no eligible provider among %d allowed", len(e.Allowed))
}

// ProviderExecutionError reports a failed or timed-out provider call after
// fallback selection was exhausted.
type ProviderExecutionError struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Timeout  bool   `json:"timeout"`
	Err      error  `json:"-"`
}

func (e *ProviderExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("provider %s timed out (model %s)", e.Provider, e.Model)
	}
	return fmt.Sprintf("provider %s execution failed (model %s): %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderExecutionError) Unwrap() error { return e.Err }

// BookkeepingError wraps an unexpected fault inside limiter, cache, or
// classifier logic. The rate limiter converts these into fail-open
// admissions; other components propagate them (fail closed).
type BookkeepingError struct {
	Component string `json:"component"`
	Op        string `json:"op"`
	Err       error  `json:"-"`
}

func (e *BookkeepingError) Error() string {
	return fmt.Sprintf("internal %s error during %s: %v", e.Component, e.Op, e.Err)
}

func (e *BookkeepingError) Unwrap() error { return e.Err }

// IsRateLimitError reports whether err is a rate limit rejection.
func IsRateLimitError(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// GetRetryAfter extracts the retry-after hint in seconds, or 0 when the
// error carries no backoff guidance.
func GetRetryAfter(err error) int {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// ReasonFor classifies an error into the structured rejection reason
// returned to callers.
func ReasonFor(err error) Reason {
	switch {
	case err == nil:
		return ""
	case IsRateLimitError(err):
		return ReasonRateLimited
	case isNoProvider(err):
		return ReasonNoProvider
	case isProviderFailure(err):
		return ReasonProviderFailure
	case errors.Is(err, ErrEmptyPrompt):
		return ReasonInvalidRequest
	default:
		return ReasonInternal
	}
}

func isNoProvider(err error) bool {
	var ne *NoEligibleProviderError
	return errors.As(err, &ne) || errors.Is(err, ErrUnknownProvider) || errors.Is(err, ErrProviderUnavailable)
}

func isProviderFailure(err error) bool {
	var pe *ProviderExecutionError
	return errors.As(err, &pe)
}
