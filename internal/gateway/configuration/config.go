// Package configuration holds the gateway's configuration model: rate-limit
// rules, cache sizing, classifier thresholds, and provider descriptors,
// loaded from the environment and an optional providers file.
package configuration

import (
	"fmt"
	"time"
)

// Config is the process-wide gateway configuration.
type Config struct {
	Server    ServerConfig              `json:"server"`
	RateLimit RateLimitConfig           `json:"rate_limit"`
	Cache     CacheConfig               `json:"cache"`
	Security  SecurityConfig            `json:"security"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port string `json:"port"`
	Env  string `json:"env"`
}

// RuleConfig is one rate-limit rule. Rules resolve per caller with
// precedence: caller-specific override > provider-specific rule > default.
type RuleConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	RequestsPerHour   int `json:"requests_per_hour" yaml:"requests_per_hour"`
	TokensPerMinute   int `json:"tokens_per_minute" yaml:"tokens_per_minute"`
	BurstLimit        int `json:"burst_limit" yaml:"burst_limit"`
	CooldownSeconds   int `json:"cooldown_seconds" yaml:"cooldown_seconds"`
}

// RateLimitConfig controls caller and global throughput budgets. When
// RedisAddr is set the global 60-second window is enforced in Redis and
// shared across gateway instances, degrading to a local limiter when Redis
// is unreachable.
type RateLimitConfig struct {
	Default       RuleConfig            `json:"default"`
	PerProvider   map[string]RuleConfig `json:"per_provider"`
	GlobalCeiling int                   `json:"global_ceiling"` // Requests per 60s across all callers

	RedisAddr      string        `json:"redis_addr"`
	RedisPassword  string        `json:"-"` // Sensitive, not serialized
	RedisDB        int           `json:"redis_db"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// CacheConfig controls the in-memory response cache.
type CacheConfig struct {
	MaxEntries    int           `json:"max_entries"`
	DefaultTTL    time.Duration `json:"default_ttl"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

// SecurityConfig controls the content security classifier.
type SecurityConfig struct {
	// SensitivityThreshold is the score at or above which content is
	// treated as sensitive and routing is restricted to high-tier providers.
	SensitivityThreshold float64 `json:"sensitivity_threshold"`
}

// ProviderConfig describes one backend provider as configured, before it is
// turned into a runtime descriptor with liveness state.
type ProviderConfig struct {
	Type           string  `json:"type" yaml:"type"` // "local" or "cloud"
	Endpoint       string  `json:"endpoint" yaml:"endpoint"`
	Model          string  `json:"model" yaml:"model"`
	TimeoutSeconds int     `json:"timeout_seconds" yaml:"timeout_seconds"`
	CostPerToken   float64 `json:"cost_per_token" yaml:"cost_per_token"`
	SecurityTier   string  `json:"security_tier" yaml:"security_tier"` // "high", "medium", "low"
	APIKeyEnv      string  `json:"api_key_env" yaml:"api_key_env"`
	APIKey         string  `json:"-" yaml:"-"` // Sensitive, resolved from APIKeyEnv
}

// Timeout returns the per-call timeout for the provider.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return DefaultProviderTimeout
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Validate checks the configuration for values that would produce a
// non-functional or unsafe gateway.
func (c *Config) Validate() error {
	if err := validateRule("default", c.RateLimit.Default); err != nil {
		return err
	}
	for name, rule := range c.RateLimit.PerProvider {
		if err := validateRule(name, rule); err != nil {
			return err
		}
	}
	if c.RateLimit.GlobalCeiling < 0 {
		return fmt.Errorf("invalid rate limit: global ceiling cannot be negative (got %d)", c.RateLimit.GlobalCeiling)
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("invalid cache config: max entries must be positive (got %d)", c.Cache.MaxEntries)
	}
	if c.Cache.DefaultTTL <= 0 {
		return fmt.Errorf("invalid cache config: default TTL must be positive (got %s)", c.Cache.DefaultTTL)
	}
	if c.Security.SensitivityThreshold < 0 || c.Security.SensitivityThreshold > 1 {
		return fmt.Errorf("invalid security config: threshold must be in [0,1] (got %f)", c.Security.SensitivityThreshold)
	}
	for name, p := range c.Providers {
		switch p.SecurityTier {
		case "high", "medium", "low":
		default:
			return fmt.Errorf("invalid provider %s: unknown security tier %q", name, p.SecurityTier)
		}
		switch p.Type {
		case "local", "cloud":
		default:
			return fmt.Errorf("invalid provider %s: unknown type %q", name, p.Type)
		}
		if p.Endpoint == "" {
			return fmt.Errorf("invalid provider %s: endpoint is required", name)
		}
	}
	return nil
}

func validateRule(name string, r RuleConfig) error {
	if r.RequestsPerMinute <= 0 {
		return fmt.Errorf("invalid rule %s: requests per minute must be positive (got %d)", name, r.RequestsPerMinute)
	}
	if r.RequestsPerHour < r.RequestsPerMinute {
		return fmt.Errorf("invalid rule %s: requests per hour (%d) below requests per minute (%d)", name, r.RequestsPerHour, r.RequestsPerMinute)
	}
	if r.TokensPerMinute < 0 {
		return fmt.Errorf("invalid rule %s: tokens per minute cannot be negative (got %d)", name, r.TokensPerMinute)
	}
	if r.BurstLimit <= 0 {
		return fmt.Errorf("invalid rule %s: burst limit must be positive (got %d)", name, r.BurstLimit)
	}
	if r.CooldownSeconds < 0 {
		return fmt.Errorf("invalid rule %s: cooldown cannot be negative (got %d)", name, r.CooldownSeconds)
	}
	return nil
}
