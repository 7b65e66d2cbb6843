// Package config loads process settings from the environment.
//
// Pricing settings are not process settings: markup, gateway fees, age rules
// and refund constants live in the rate card (see factory), which can change
// at runtime. This package only covers what the binary needs to start.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces every variable this package reads.
const EnvPrefix = "FARE_"

// Config holds application configuration loaded from the environment.
type Config struct {
	Port               string
	DBPath             string
	LogLevel           string
	LogFormat          string
	RateCardPath       string // optional JSON or YAML rate card seeded at startup
	RateCardRefresh    time.Duration
	CORSAllowedOrigins []string
	MetricsNamespace   string
}

// Load reads FARE_* variables, after loading envFiles (default ".env") when
// they exist. Variables already set in the environment win over the files.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	k := koanf.New(".")
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(s, EnvPrefix)
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	refresh, err := parseDuration("RATE_CARD_REFRESH", k.String("RATE_CARD_REFRESH"), "30s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DBPath:             valueOrDefault(k.String("DB_PATH"), "fares.db"),
		LogLevel:           valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat:          strings.ToLower(valueOrDefault(k.String("LOG_FORMAT"), "json")),
		RateCardPath:       strings.TrimSpace(k.String("RATE_CARD")),
		RateCardRefresh:    refresh,
		CORSAllowedOrigins: splitAndTrim(valueOrDefault(k.String("CORS_ALLOWED_ORIGINS"), "*")),
		MetricsNamespace:   valueOrDefault(k.String("METRICS_NAMESPACE"), "fares"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.LogFormat {
	case "json", "console", "text":
	default:
		return fmt.Errorf("%sLOG_FORMAT must be json or console, got %q", EnvPrefix, c.LogFormat)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%sDB_PATH is required", EnvPrefix)
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseDuration reads key as a Go duration, using fallback when unset.
func parseDuration(key, value, fallback string) (time.Duration, error) {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		return 0, fmt.Errorf("%s%s must be a duration like 30s, got %q", EnvPrefix, key, value)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s%s must not be negative, got %q", EnvPrefix, key, value)
	}
	return d, nil
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}
