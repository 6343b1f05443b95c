// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// ECSEConfig holds the join-set algebra and pruning knobs.
type ECSEConfig struct {
	Alpha                int     // min table instances per candidate, heuristic B (default 2)
	Beta                 int     // min query blocks per candidate, heuristic C (default 2)
	MinIntersectionEdges int     // min edges of an intersection (default 1)
	EnableUnion          bool    // run the Union stage (default true)
	EnableSuperset       bool    // allow superset propagation (default true)
	PruneA               bool    // many-to-many pruning (default false, needs row counts)
	PruneB               bool    // table-count pruning (default true)
	PruneC               bool    // qb-count pruning (default true)
	PruneD               bool    // non-maximal pruning (default true)
	PruneE               bool    // cardinality-ratio pruning (default false, needs row counts)
	MaxCardinalityRatio  float64 // heuristic E threshold (default 100)
	ManyToManyMinRows    int64   // heuristic A table size floor (default 1000)
	Workers              int     // parallel per-fact-table pipelines (default 4)
	FactTables           []string
}

// Config holds the configuration for the advisor CLI and HTTP API.
type Config struct {
	ListenAddr string // HTTP listen address (default ":8080")
	StorePath  string // path to the SQLite run store (optional)
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Rate limiting on /v1, per client address
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	ECSE ECSEConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// HasStore returns true if a run store path is configured.
func (c *Config) HasStore() bool {
	return c.StorePath != ""
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr: os.Getenv("LISTEN_ADDR"),
		StorePath:  os.Getenv("STORE_PATH"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
		Env:        os.Getenv("ENV"),
		ECSE: ECSEConfig{
			EnableUnion:    parseBoolEnvDefault("ECSE_ENABLE_UNION", true),
			EnableSuperset: parseBoolEnvDefault("ECSE_ENABLE_SUPERSET", true),
			PruneA:         parseBoolEnvDefault("ECSE_PRUNE_A", false),
			PruneB:         parseBoolEnvDefault("ECSE_PRUNE_B", true),
			PruneC:         parseBoolEnvDefault("ECSE_PRUNE_C", true),
			PruneD:         parseBoolEnvDefault("ECSE_PRUNE_D", true),
			PruneE:         parseBoolEnvDefault("ECSE_PRUNE_E", false),
		},
	}

	cfg.ECSE.Alpha = cfg.intEnv("ECSE_ALPHA", 2)
	cfg.ECSE.Beta = cfg.intEnv("ECSE_BETA", 2)
	cfg.ECSE.MinIntersectionEdges = cfg.intEnv("ECSE_MIN_INTERSECTION_EDGES", 1)
	cfg.ECSE.Workers = cfg.intEnv("ECSE_WORKERS", 4)
	cfg.ECSE.ManyToManyMinRows = int64(cfg.intEnv("ECSE_MANY_TO_MANY_MIN_ROWS", 1000))

	cfg.ECSE.MaxCardinalityRatio = 100
	if v := os.Getenv("ECSE_MAX_CARDINALITY_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.ECSE.MaxCardinalityRatio = f
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ECSE_MAX_CARDINALITY_RATIO=%q is not a positive number, using 100", v))
		}
	}

	if v := os.Getenv("ECSE_FACT_TABLES"); v != "" {
		cfg.ECSE.FactTables = splitList(v)
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	// Rate limiting
	cfg.RateLimitRPS = 100
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.RateLimitRPS = f
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("RATE_LIMIT_RPS=%q is not a non-negative number, using 100", v))
		}
	}
	cfg.RateLimitBurst = cfg.intEnv("RATE_LIMIT_BURST", 200)
	if cfg.RateLimitRPS == 0 {
		cfg.Warnings = append(cfg.Warnings, "RATE_LIMIT_RPS=0 disables rate limiting")
	} else if cfg.RateLimitBurst < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_BURST must be at least 1, got %d", cfg.RateLimitBurst)
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.ECSE.PruneA || cfg.ECSE.PruneE {
		cfg.Warnings = append(cfg.Warnings, "ECSE_PRUNE_A/ECSE_PRUNE_E only take effect when the schema carries row counts")
	}

	if err := cfg.ECSE.Validate(); err != nil {
		return nil, err
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

// Validate checks the ECSE knobs for values the pipeline cannot run with.
func (e *ECSEConfig) Validate() error {
	if e.Alpha < 1 {
		return fmt.Errorf("ECSE_ALPHA must be at least 1, got %d", e.Alpha)
	}
	if e.Beta < 1 {
		return fmt.Errorf("ECSE_BETA must be at least 1, got %d", e.Beta)
	}
	if e.MinIntersectionEdges < 1 {
		return fmt.Errorf("ECSE_MIN_INTERSECTION_EDGES must be at least 1, got %d", e.MinIntersectionEdges)
	}
	if e.Workers < 1 {
		return fmt.Errorf("ECSE_WORKERS must be at least 1, got %d", e.Workers)
	}
	return nil
}

// intEnv reads an integer variable. An unparsable value falls back to the
// default and records a warning.
func (c *Config) intEnv(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not an integer, using %d", key, v, defaultVal))
		return defaultVal
	}
	return n
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return compactNonEmpty(parts)
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
