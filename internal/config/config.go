// Package config loads service settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultPort         = "4300"
	defaultEnvironment  = "development"
	defaultRuleCacheTTL = 30 * time.Second
)

func init() {
	loadDotEnv(".env")
}

// Config holds everything the server needs at startup.
type Config struct {
	Port         string
	DatabaseURL  string
	Environment  string
	RuleCacheTTL time.Duration
}

// Load reads and validates the configuration.
func Load() (Config, error) {
	ttl, err := durationEnv("RULE_CACHE_TTL", defaultRuleCacheTTL)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:         envOr("PORT", defaultPort),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Environment:  resolveEnvironment(),
		RuleCacheTTL: ttl,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the settings a deployment cannot run without. A
// missing DATABASE_URL is tolerated in development, where the server
// starts degraded.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if isNonDevelopment(c.Environment) && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required in non-development environments")
	}
	return nil
}

// resolveEnvironment checks the usual deployment variables in priority
// order and lowercases the result.
func resolveEnvironment() string {
	for _, key := range []string{"APP_ENV", "ENVIRONMENT", "GO_ENV", "RAILWAY_ENVIRONMENT"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return strings.ToLower(v)
		}
	}
	return defaultEnvironment
}

func isNonDevelopment(env string) bool {
	switch env {
	case "", "dev", "development", "local", "test":
		return false
	}
	return true
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

// loadDotEnv applies KEY=VALUE lines from path. Existing environment
// variables win over file values.
func loadDotEnv(path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))
		if key != "" && os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func unquote(v string) string {
	if len(v) < 2 {
		return v
	}
	if first, last := v[0], v[len(v)-1]; first == last && (first == '"' || first == '\'') {
		return v[1 : len(v)-1]
	}
	return v
}
