package configuration

import "time"

// Rate limiting defaults.
const (
	DefaultRequestsPerMinute = 60
	DefaultRequestsPerHour   = 1000
	DefaultTokensPerMinute   = 90000
	DefaultBurstLimit        = 10
	DefaultCooldownSeconds   = 60
	DefaultGlobalCeiling     = 1000 // Requests per 60s across all callers
	DefaultConnectTimeout    = 5 * time.Second
)

// Cache defaults.
const (
	DefaultCacheMaxEntries    = 1000
	DefaultCacheTTL           = 1 * time.Hour
	DefaultCacheSweepInterval = 5 * time.Minute
)

// Classifier and provider defaults.
const (
	DefaultSensitivityThreshold = 0.7
	DefaultProviderTimeout      = 30 * time.Second
	DefaultProbeInterval        = 30 * time.Second
)

// DefaultRule returns the global default rate-limit rule applied to callers
// without an override or a provider-specific rule.
func DefaultRule() RuleConfig {
	return RuleConfig{
		RequestsPerMinute: DefaultRequestsPerMinute,
		RequestsPerHour:   DefaultRequestsPerHour,
		TokensPerMinute:   DefaultTokensPerMinute,
		BurstLimit:        DefaultBurstLimit,
		CooldownSeconds:   DefaultCooldownSeconds,
	}
}

// DefaultConfig returns a configuration with production defaults. Providers
// are left empty; they come from the providers file or must be registered
// by the embedding process.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Env:  "development",
		},
		RateLimit: RateLimitConfig{
			Default:        DefaultRule(),
			PerProvider:    map[string]RuleConfig{},
			GlobalCeiling:  DefaultGlobalCeiling,
			ConnectTimeout: DefaultConnectTimeout,
		},
		Cache: CacheConfig{
			MaxEntries:    DefaultCacheMaxEntries,
			DefaultTTL:    DefaultCacheTTL,
			SweepInterval: DefaultCacheSweepInterval,
		},
		Security: SecurityConfig{
			SensitivityThreshold: DefaultSensitivityThreshold,
		},
		Providers: map[string]ProviderConfig{},
	}
}
