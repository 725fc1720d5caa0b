package ratelimit

// Status is a non-mutating snapshot of one caller's current utilization,
// exposed for diagnostics through the admin surface.
type Status struct {
	CallerID           string `json:"caller_id"`
	RequestsThisMinute int    `json:"requests_this_minute"`
	RequestsThisHour   int    `json:"requests_this_hour"`
	TokensThisMinute   int    `json:"tokens_this_minute"`
	CooldownRemaining  int    `json:"cooldown_remaining_seconds"`
	BurstCount         int    `json:"burst_count"`

	// Rule is the caller's currently resolved rule.
	RequestsPerMinute int `json:"requests_per_minute"`
	RequestsPerHour   int `json:"requests_per_hour"`
	TokensPerMinute   int `json:"tokens_per_minute"`
	BurstLimit        int `json:"burst_limit"`
}

// Stats summarizes limiter health for monitoring.
type Stats struct {
	// Callers is the number of tracked caller states.
	Callers int `json:"callers"`
	// Overrides is the number of installed caller-specific rules.
	Overrides int `json:"overrides"`
	// GlobalWindow is the local global window size (zero when the window
	// lives in Redis).
	GlobalWindow int `json:"global_window"`
	// RemoteEnabled reports whether the global window is Redis-backed.
	RemoteEnabled bool `json:"remote_enabled"`
	// DegradedMode reports fallback to local-only global limiting.
	DegradedMode bool `json:"degraded_mode"`
	// InternalErrors counts fail-open admissions caused by bookkeeping
	// faults.
	InternalErrors int64 `json:"internal_errors"`
}

// Status reports a caller's utilization without mutating any window state:
// expired samples are skipped by age check rather than purged.
func (l *Limiter) Status(callerID, providerHint string) Status {
	rule := l.resolveRule(callerID, providerHint)

	l.mu.Lock()
	defer l.mu.Unlock()

	status := Status{
		CallerID:          callerID,
		RequestsPerMinute: rule.RequestsPerMinute,
		RequestsPerHour:   rule.RequestsPerHour,
		TokensPerMinute:   rule.TokensPerMinute,
		BurstLimit:        rule.BurstLimit,
	}

	state, ok := l.callers[callerID]
	if !ok {
		return status
	}

	now := l.now()
	minuteCutoff := now.Add(-minuteWindow)
	hourCutoff := now.Add(-windowRetention)

	status.RequestsThisMinute = countSince(state.requests, minuteCutoff)
	status.RequestsThisHour = countSince(state.requests, hourCutoff)
	status.BurstCount = state.burstCount

	for _, sample := range state.tokens {
		if sample.at.After(minuteCutoff) {
			status.TokensThisMinute += sample.tokens
		}
	}

	if state.cooldownUntil.After(now) {
		status.CooldownRemaining = ceilSeconds(state.cooldownUntil.Sub(now))
	}

	return status
}

// GetStats returns a snapshot of limiter-wide health metrics.
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	callers := len(l.callers)
	overrides := len(l.overrides)
	globalWindow := countSince(l.global, l.now().Add(-minuteWindow))
	l.mu.Unlock()

	stats := Stats{
		Callers:        callers,
		Overrides:      overrides,
		GlobalWindow:   globalWindow,
		InternalErrors: l.internalErrors.Load(),
	}
	if l.remote != nil {
		stats.RemoteEnabled = true
		stats.DegradedMode = l.remote.degraded.Load()
	}
	return stats
}
