// Package config loads engine configuration from environment variables,
// with an optional YAML file overlay for operators who prefer a file over
// a long env list.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a kirk node or validator CLI.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Transport
	TransportKind string // "memory" for the in-process reference bus

	// Mint
	MintKind string // "stub" for the reference/mock mint

	// Idempotency store
	IdempotencyKind string // "memory", "comet", or "postgres"
	IdempotencyPath string // comet db directory, when IdempotencyKind == "comet"
	DatabaseURL     string // postgres DSN, when IdempotencyKind == "postgres"

	// Signing
	SigningKeyPath string // path to a raw 32-byte ed25519 seed file

	// Timeouts, mirrored as both raw seconds and time.Duration
	ClockSkewToleranceSec int64
	CommitRevealWindowSec int64
	MoveInactivitySec     int64
	FinalWindowSec        int64
	TickInterval          time.Duration

	LogLevel string
}

// Default returns a Config with safe, local-development defaults.
func Default() *Config {
	return &Config{
		ListenAddr:            ":8080",
		MetricsAddr:           ":9090",
		TransportKind:         "memory",
		MintKind:              "stub",
		IdempotencyKind:       "memory",
		IdempotencyPath:       "./data/idempotency",
		ClockSkewToleranceSec: 300,
		CommitRevealWindowSec: 120,
		MoveInactivitySec:     60,
		FinalWindowSec:        60,
		TickInterval:          5 * time.Second,
		LogLevel:              "info",
	}
}

// Load reads configuration from environment variables, layered on top of
// Default()'s values.
func Load() (*Config, error) {
	cfg := Default()

	cfg.ListenAddr = getEnv("KIRK_LISTEN_ADDR", cfg.ListenAddr)
	cfg.MetricsAddr = getEnv("KIRK_METRICS_ADDR", cfg.MetricsAddr)
	cfg.TransportKind = getEnv("KIRK_TRANSPORT", cfg.TransportKind)
	cfg.MintKind = getEnv("KIRK_MINT", cfg.MintKind)
	cfg.IdempotencyKind = getEnv("KIRK_IDEMPOTENCY_STORE", cfg.IdempotencyKind)
	cfg.IdempotencyPath = getEnv("KIRK_IDEMPOTENCY_PATH", cfg.IdempotencyPath)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.SigningKeyPath = getEnv("KIRK_SIGNING_KEY_PATH", cfg.SigningKeyPath)

	cfg.ClockSkewToleranceSec = getEnvInt64("KIRK_CLOCK_SKEW_TOLERANCE_SEC", cfg.ClockSkewToleranceSec)
	cfg.CommitRevealWindowSec = getEnvInt64("KIRK_COMMIT_REVEAL_WINDOW_SEC", cfg.CommitRevealWindowSec)
	cfg.MoveInactivitySec = getEnvInt64("KIRK_MOVE_INACTIVITY_SEC", cfg.MoveInactivitySec)
	cfg.FinalWindowSec = getEnvInt64("KIRK_FINAL_WINDOW_SEC", cfg.FinalWindowSec)
	cfg.TickInterval = getEnvDuration("KIRK_TICK_INTERVAL", cfg.TickInterval)
	cfg.LogLevel = getEnv("KIRK_LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

// LoadFile overlays YAML-file configuration on top of Default(), for
// operators who prefer a file to an environment-variable list. Only
// fields present in the file are overridden.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var overlay struct {
		ListenAddr      string `yaml:"listen_addr"`
		MetricsAddr     string `yaml:"metrics_addr"`
		TransportKind   string `yaml:"transport"`
		MintKind        string `yaml:"mint"`
		IdempotencyKind string `yaml:"idempotency_store"`
		IdempotencyPath string `yaml:"idempotency_path"`
		DatabaseURL     string `yaml:"database_url"`
		SigningKeyPath  string `yaml:"signing_key_path"`
		Timeouts        struct {
			ClockSkewToleranceSec int64  `yaml:"clock_skew_tolerance_sec"`
			CommitRevealWindowSec int64  `yaml:"commit_reveal_window_sec"`
			MoveInactivitySec     int64  `yaml:"move_inactivity_sec"`
			FinalWindowSec        int64  `yaml:"final_window_sec"`
			TickInterval          string `yaml:"tick_interval"`
		} `yaml:"timeouts"`
		LogLevel string `yaml:"log_level"`
	}
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if overlay.ListenAddr != "" {
		cfg.ListenAddr = overlay.ListenAddr
	}
	if overlay.MetricsAddr != "" {
		cfg.MetricsAddr = overlay.MetricsAddr
	}
	if overlay.TransportKind != "" {
		cfg.TransportKind = overlay.TransportKind
	}
	if overlay.MintKind != "" {
		cfg.MintKind = overlay.MintKind
	}
	if overlay.IdempotencyKind != "" {
		cfg.IdempotencyKind = overlay.IdempotencyKind
	}
	if overlay.IdempotencyPath != "" {
		cfg.IdempotencyPath = overlay.IdempotencyPath
	}
	if overlay.DatabaseURL != "" {
		cfg.DatabaseURL = overlay.DatabaseURL
	}
	if overlay.SigningKeyPath != "" {
		cfg.SigningKeyPath = overlay.SigningKeyPath
	}
	if overlay.Timeouts.ClockSkewToleranceSec != 0 {
		cfg.ClockSkewToleranceSec = overlay.Timeouts.ClockSkewToleranceSec
	}
	if overlay.Timeouts.CommitRevealWindowSec != 0 {
		cfg.CommitRevealWindowSec = overlay.Timeouts.CommitRevealWindowSec
	}
	if overlay.Timeouts.MoveInactivitySec != 0 {
		cfg.MoveInactivitySec = overlay.Timeouts.MoveInactivitySec
	}
	if overlay.Timeouts.FinalWindowSec != 0 {
		cfg.FinalWindowSec = overlay.Timeouts.FinalWindowSec
	}
	if overlay.Timeouts.TickInterval != "" {
		d, err := time.ParseDuration(overlay.Timeouts.TickInterval)
		if err != nil {
			return nil, fmt.Errorf("config: parse timeouts.tick_interval: %w", err)
		}
		cfg.TickInterval = d
	}
	if overlay.LogLevel != "" {
		cfg.LogLevel = overlay.LogLevel
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent and
// that any required fields for the selected backend are present.
func (c *Config) Validate() error {
	var errs []string

	switch c.TransportKind {
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("unknown transport kind %q", c.TransportKind))
	}

	switch c.MintKind {
	case "stub":
	default:
		errs = append(errs, fmt.Sprintf("unknown mint kind %q", c.MintKind))
	}

	switch c.IdempotencyKind {
	case "memory":
	case "comet":
		if c.IdempotencyPath == "" {
			errs = append(errs, "idempotency_path is required when idempotency_store=comet")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, "database_url is required when idempotency_store=postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown idempotency store kind %q", c.IdempotencyKind))
	}

	if c.ClockSkewToleranceSec < 0 || c.CommitRevealWindowSec < 0 || c.MoveInactivitySec < 0 || c.FinalWindowSec < 0 {
		errs = append(errs, "timeout window values must be non-negative")
	}
	if c.TickInterval <= 0 {
		errs = append(errs, "tick_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
