package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// providersFile mirrors the on-disk providers yaml document.
type providersFile struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// Load builds the configuration from environment variables (a .env file is
// honored when present) and, when PROVIDERS_FILE points at a yaml document,
// the provider descriptors it declares.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Server.Env = getEnv("ENV", cfg.Server.Env)

	cfg.RateLimit.Default = RuleConfig{
		RequestsPerMinute: getEnvInt("RATE_LIMIT_REQUESTS_PER_MINUTE", DefaultRequestsPerMinute),
		RequestsPerHour:   getEnvInt("RATE_LIMIT_REQUESTS_PER_HOUR", DefaultRequestsPerHour),
		TokensPerMinute:   getEnvInt("RATE_LIMIT_TOKENS_PER_MINUTE", DefaultTokensPerMinute),
		BurstLimit:        getEnvInt("RATE_LIMIT_BURST_LIMIT", DefaultBurstLimit),
		CooldownSeconds:   getEnvInt("RATE_LIMIT_COOLDOWN_SECONDS", DefaultCooldownSeconds),
	}
	cfg.RateLimit.GlobalCeiling = getEnvInt("RATE_LIMIT_GLOBAL_CEILING", DefaultGlobalCeiling)
	cfg.RateLimit.RedisAddr = getEnv("RATE_LIMIT_REDIS_ADDR", "")
	cfg.RateLimit.RedisPassword = getEnv("RATE_LIMIT_REDIS_PASSWORD", "")
	cfg.RateLimit.RedisDB = getEnvInt("RATE_LIMIT_REDIS_DB", 0)

	cfg.Cache.MaxEntries = getEnvInt("CACHE_MAX_ENTRIES", DefaultCacheMaxEntries)
	cfg.Cache.DefaultTTL = time.Duration(getEnvInt("CACHE_TTL_SECONDS", int(DefaultCacheTTL/time.Second))) * time.Second
	cfg.Cache.SweepInterval = time.Duration(getEnvInt("CACHE_SWEEP_INTERVAL_SECONDS", int(DefaultCacheSweepInterval/time.Second))) * time.Second

	cfg.Security.SensitivityThreshold = getEnvFloat("SECURITY_SENSITIVITY_THRESHOLD", DefaultSensitivityThreshold)

	if path := getEnv("PROVIDERS_FILE", ""); path != "" {
		providers, err := LoadProviders(path)
		if err != nil {
			return nil, err
		}
		cfg.Providers = providers
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadProviders parses provider descriptors from a yaml file and resolves
// API keys from the environment variables the file names.
func LoadProviders(path string) (map[string]ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse providers file: %w", err)
	}

	for name, p := range file.Providers {
		if p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
			file.Providers[name] = p
		}
	}

	return file.Providers, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
