// Package ratelimit enforces per-caller and global throughput budgets
// using sliding windows of recent request timestamps and token usage.
//
// Each caller carries a resolved rule (caller override > provider rule >
// global default), a one-hour window of request timestamps, a matching
// token-usage window, and burst/cooldown state. A process-wide global
// window caps aggregate traffic; when Redis is configured the global
// window is shared across instances and degrades to a local limiter on
// Redis failure.
//
// Policy: the limiter fails OPEN. An unexpected fault during admission
// admits the request and reports the error through the log; blocked
// traffic is considered worse than a transiently exceeded budget.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/promptwire/gateway/internal/gateway/configuration"
	gwerrors "github.com/promptwire/gateway/internal/gateway/errors"
)

// Window retention and sub-window sizes.
const (
	// windowRetention bounds how long request/token samples are kept.
	windowRetention = time.Hour

	// minuteWindow is the span of per-minute budget checks.
	minuteWindow = time.Minute

	// burstSpacing is the inter-request gap below which requests count
	// toward the burst counter.
	burstSpacing = time.Second
)

// tokenSample records token usage at a point in time.
type tokenSample struct {
	at     time.Time
	tokens int
}

// callerState is the per-caller accounting record. Created lazily on a
// caller's first request and retained until an explicit reset. Owned
// exclusively by the Limiter; all access goes through the Limiter's mutex.
type callerState struct {
	requests      []time.Time
	tokens        []tokenSample
	burstCount    int
	lastRequest   time.Time
	cooldownUntil time.Time
}

// Limiter admits or rejects requests against caller and global budgets.
//
// A single mutex guards all caller state and the local global window. The
// bookkeeping inside the critical section is O(window size) with no
// suspension points, so admissions are atomic with respect to each other;
// only the optional Redis round-trip happens outside the lock.
type Limiter struct {
	mu      sync.Mutex
	callers map[string]*callerState

	defaultRule   configuration.RuleConfig
	providerRules map[string]configuration.RuleConfig
	overrides     map[string]configuration.RuleConfig

	// Local global window, used when no Redis address is configured.
	global        []time.Time
	globalCeiling int

	// Distributed global window state.
	remote *remoteWindow

	internalErrors atomic.Int64

	logger *slog.Logger

	// now is swappable for deterministic window tests.
	now func() time.Time
}

// NewLimiter creates a limiter from configuration. When cfg.RedisAddr is
// set the global window is enforced in Redis with fail-open degradation;
// otherwise it is a local in-memory sliding window.
func NewLimiter(cfg configuration.RateLimitConfig) *Limiter {
	l := &Limiter{
		callers:       make(map[string]*callerState),
		defaultRule:   cfg.Default,
		providerRules: cfg.PerProvider,
		overrides:     make(map[string]configuration.RuleConfig),
		globalCeiling: cfg.GlobalCeiling,
		logger:        slog.Default().With("component", "ratelimit"),
		now:           time.Now,
	}
	if l.providerRules == nil {
		l.providerRules = map[string]configuration.RuleConfig{}
	}

	if cfg.RedisAddr != "" {
		l.remote = newRemoteWindow(cfg, l.logger)
	}

	return l
}

// Admit evaluates a request against the caller's resolved rule and the
// global window, in the fixed order: cooldown, window purge, burst check,
// per-minute and per-hour request budgets, token budget, global window.
// On success the request timestamp is appended to the caller's window
// (usage is recorded at admission); token usage is added later via Record.
// A rejection by the shared Redis window rolls that admission back, so a
// globally rejected request does not consume the caller's budgets.
//
// Returns nil on admission or a *gwerrors.RateLimitError carrying the
// rejecting scope and a retry-after hint. Internal faults admit the
// request (fail open) and are logged.
func (l *Limiter) Admit(ctx context.Context, callerID, providerHint string, tokensRequested int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.internalErrors.Add(1)
			l.logger.Error("admission bookkeeping fault, failing open",
				"caller_prefix", callerPrefix(callerID), "panic", fmt.Sprint(r))
			err = nil
		}
	}()

	rule := l.resolveRule(callerID, providerHint)
	now := l.now()

	if err := l.admitLocal(callerID, rule, tokensRequested, now); err != nil {
		return err
	}

	// The Redis round-trip may block, so it runs outside the limiter lock.
	if l.remote != nil {
		if err := l.remote.check(ctx, callerID, l.globalCeiling); err != nil {
			l.rollbackAdmission(callerID, now)
			return err
		}
	}

	return nil
}

// admitLocal evaluates every in-memory budget and, on success, records the
// admission. The lock is released by defer so a bookkeeping panic recovered
// by Admit as a fail-open admit can never leave it held.
func (l *Limiter) admitLocal(callerID string, rule configuration.RuleConfig, tokensRequested int, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.stateFor(callerID)

	// 1. Cooldown penalty box.
	if state.cooldownUntil.After(now) {
		return &gwerrors.RateLimitError{
			CallerID:   callerID,
			Scope:      "cooldown",
			Limit:      rule.BurstLimit,
			RetryAfter: ceilSeconds(state.cooldownUntil.Sub(now)),
		}
	}

	// 2. Purge samples older than the retention horizon.
	state.requests = pruneTimes(state.requests, now.Add(-windowRetention))
	state.tokens = pruneTokens(state.tokens, now.Add(-windowRetention))

	// 3. Burst detection. Requests spaced under one second accumulate;
	// exceeding the burst limit trips a cooldown and resets the counter.
	if !state.lastRequest.IsZero() && now.Sub(state.lastRequest) < burstSpacing {
		state.burstCount++
		if state.burstCount > rule.BurstLimit {
			cooldown := time.Duration(rule.CooldownSeconds) * time.Second
			state.cooldownUntil = now.Add(cooldown)
			state.burstCount = 0
			state.lastRequest = now
			return &gwerrors.RateLimitError{
				CallerID:   callerID,
				Scope:      "burst",
				Limit:      rule.BurstLimit,
				RetryAfter: rule.CooldownSeconds,
			}
		}
	} else {
		state.burstCount = 1
	}

	// 4. Request budgets.
	minuteCutoff := now.Add(-minuteWindow)
	if countSince(state.requests, minuteCutoff) >= rule.RequestsPerMinute {
		return &gwerrors.RateLimitError{
			CallerID:   callerID,
			Scope:      "minute",
			Limit:      rule.RequestsPerMinute,
			RetryAfter: windowResetSeconds(state.requests, minuteCutoff, now, minuteWindow),
		}
	}
	if len(state.requests) >= rule.RequestsPerHour {
		return &gwerrors.RateLimitError{
			CallerID:   callerID,
			Scope:      "hour",
			Limit:      rule.RequestsPerHour,
			RetryAfter: windowResetSeconds(state.requests, now.Add(-windowRetention), now, windowRetention),
		}
	}

	// 5. Token budget.
	if tokensRequested > 0 && rule.TokensPerMinute > 0 {
		used := 0
		for _, sample := range state.tokens {
			if sample.at.After(minuteCutoff) {
				used += sample.tokens
			}
		}
		if used+tokensRequested > rule.TokensPerMinute {
			return &gwerrors.RateLimitError{
				CallerID:   callerID,
				Scope:      "tokens",
				Limit:      rule.TokensPerMinute,
				RetryAfter: ceilSeconds(minuteWindow),
			}
		}
	}

	// 6. Global window, local variant. With Redis configured the shared
	// window is checked by the caller after this lock is released.
	if l.remote == nil {
		l.global = pruneTimes(l.global, minuteCutoff)
		if l.globalCeiling > 0 && len(l.global) >= l.globalCeiling {
			return &gwerrors.RateLimitError{
				CallerID:   callerID,
				Scope:      "global",
				Limit:      l.globalCeiling,
				RetryAfter: ceilSeconds(minuteWindow),
			}
		}
		l.global = append(l.global, now)
	}

	// 7. Admission: record the request against the caller's window.
	state.requests = append(state.requests, now)
	state.lastRequest = now
	return nil
}

// rollbackAdmission removes the request timestamp recorded by admitLocal
// after the shared global window rejected the request.
func (l *Limiter) rollbackAdmission(callerID string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.callers[callerID]
	if !ok {
		return
	}
	if n := len(state.requests); n > 0 && state.requests[n-1].Equal(at) {
		state.requests = state.requests[:n-1]
	}
}

// Record adds actual token usage for an admitted request. The request
// itself was already counted at admission, so a failed provider call still
// consumes request quota.
func (l *Limiter) Record(callerID string, tokensUsed int) {
	if tokensUsed <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	state := l.stateFor(callerID)
	state.tokens = append(state.tokens, tokenSample{at: l.now(), tokens: tokensUsed})
}

// SetOverride installs a caller-specific rule taking precedence over
// provider rules and the default.
func (l *Limiter) SetOverride(callerID string, rule configuration.RuleConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[callerID] = rule
	l.logger.Info("rate limit override installed", "caller_prefix", callerPrefix(callerID))
}

// RemoveOverride deletes a caller-specific rule.
func (l *Limiter) RemoveOverride(callerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.overrides, callerID)
	l.logger.Info("rate limit override removed", "caller_prefix", callerPrefix(callerID))
}

// Reset clears one caller's accounting state.
func (l *Limiter) Reset(callerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.callers, callerID)
}

// ResetAll clears every caller's accounting state and the local global
// window.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callers = make(map[string]*callerState)
	l.global = nil
	l.logger.Info("rate limit state reset for all callers")
}

// resolveRule applies the precedence chain for a caller.
func (l *Limiter) resolveRule(callerID, providerHint string) configuration.RuleConfig {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rule, ok := l.overrides[callerID]; ok {
		return rule
	}
	if providerHint != "" {
		if rule, ok := l.providerRules[providerHint]; ok {
			return rule
		}
	}
	return l.defaultRule
}

// stateFor returns the caller's state, creating it lazily. Caller holds mu.
func (l *Limiter) stateFor(callerID string) *callerState {
	state, ok := l.callers[callerID]
	if !ok {
		state = &callerState{}
		l.callers[callerID] = state
	}
	return state
}

// pruneTimes drops timestamps at or before the cutoff. Samples are
// appended in order, so the retained suffix starts at the first survivor.
func pruneTimes(samples []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(samples) && !samples[idx].After(cutoff) {
		idx++
	}
	if idx == 0 {
		return samples
	}
	return append(samples[:0:0], samples[idx:]...)
}

func pruneTokens(samples []tokenSample, cutoff time.Time) []tokenSample {
	idx := 0
	for idx < len(samples) && !samples[idx].at.After(cutoff) {
		idx++
	}
	if idx == 0 {
		return samples
	}
	return append(samples[:0:0], samples[idx:]...)
}

func countSince(samples []time.Time, cutoff time.Time) int {
	count := 0
	for _, t := range samples {
		if t.After(cutoff) {
			count++
		}
	}
	return count
}

// windowResetSeconds estimates when the oldest in-window sample ages out,
// giving the caller a usable retry-after hint.
func windowResetSeconds(samples []time.Time, cutoff, now time.Time, span time.Duration) int {
	for _, t := range samples {
		if t.After(cutoff) {
			return ceilSeconds(t.Add(span).Sub(now))
		}
	}
	return ceilSeconds(span)
}

func ceilSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// callerPrefix truncates caller ids for logs so identifiers are
// correlatable without being fully disclosed.
func callerPrefix(callerID string) string {
	const prefixLen = 8
	if len(callerID) <= prefixLen {
		return callerID
	}
	return callerID[:prefixLen]
}
