// Package config loads reviewloop configuration from an optional YAML file
// with environment-variable overrides. Secrets (webhook secret, API
// tokens) are never read from the file — environment only.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no path is given
const DefaultPath = ".reviewloop/config.yaml"

// Config is the full daemon configuration
type Config struct {
	// ListenAddr is the address for the webhook + query HTTP server
	ListenAddr string `yaml:"listen_addr"`

	// Scheduler identifies this deployment in the ledger snapshot
	Scheduler string `yaml:"scheduler"`

	// LedgerPath is the completion snapshot location
	LedgerPath string `yaml:"ledger_path"`

	// EventDBPath is the sqlite event log location
	EventDBPath string `yaml:"event_db_path"`

	// EventRetentionDays bounds how long pipeline events are kept
	EventRetentionDays int `yaml:"event_retention_days"`

	// CleanupIntervalMinutes is how often the event retention pass runs
	CleanupIntervalMinutes int `yaml:"cleanup_interval_minutes"`

	// ShutdownGraceSeconds is how long in-flight pipelines get on SIGTERM
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds"`

	GitHub GitHubConfig `yaml:"github"`
	AI     AIConfig     `yaml:"ai"`

	// Secrets, environment only
	WebhookSecret string `yaml:"-"` // REVIEWLOOP_WEBHOOK_SECRET
	GitHubToken   string `yaml:"-"` // GITHUB_TOKEN
}

// GitHubConfig configures the forge client
type GitHubConfig struct {
	BaseURL  string `yaml:"base_url"`  // empty = api.github.com
	BotLogin string `yaml:"bot_login"` // login whose reviews count as ours
}

// AIConfig configures the reviewer
type AIConfig struct {
	Model              string `yaml:"model"`       // empty = tiered default
	QuickModel         string `yaml:"quick_model"` // empty = tiered default
	MaxConcurrentCalls int    `yaml:"max_concurrent_calls"`
	RequestsPerMinute  int    `yaml:"requests_per_minute"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:             ":8090",
		Scheduler:              "reviewloop",
		LedgerPath:             ".reviewloop/ledger.yaml",
		EventDBPath:            ".reviewloop/events.db",
		EventRetentionDays:     30,
		CleanupIntervalMinutes: 60,
		ShutdownGraceSeconds:   30,
		GitHub: GitHubConfig{
			BotLogin: "reviewloop[bot]",
		},
		AI: AIConfig{
			MaxConcurrentCalls: 3,
			RequestsPerMinute:  30,
		},
	}
}

// Load reads the config file at path (DefaultPath when empty), applies
// environment overrides, and validates. A missing file is not an error;
// defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults + env only
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers REVIEWLOOP_* environment variables over the file values
func applyEnv(cfg *Config) {
	if v := os.Getenv("REVIEWLOOP_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("REVIEWLOOP_SCHEDULER"); v != "" {
		cfg.Scheduler = v
	}
	if v := os.Getenv("REVIEWLOOP_LEDGER_PATH"); v != "" {
		cfg.LedgerPath = v
	}
	if v := os.Getenv("REVIEWLOOP_EVENT_DB_PATH"); v != "" {
		cfg.EventDBPath = v
	}
	if v := os.Getenv("REVIEWLOOP_EVENT_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EventRetentionDays = n
		}
	}
	if v := os.Getenv("REVIEWLOOP_BOT_LOGIN"); v != "" {
		cfg.GitHub.BotLogin = v
	}
	if v := os.Getenv("REVIEWLOOP_GITHUB_BASE_URL"); v != "" {
		cfg.GitHub.BaseURL = v
	}

	cfg.WebhookSecret = os.Getenv("REVIEWLOOP_WEBHOOK_SECRET")
	cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
}

// Validate checks values the daemon cannot run without. Secrets are
// checked by the components that need them, so offline commands (status,
// records) can load config without a token in the environment.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("ledger_path is required")
	}
	if c.EventDBPath == "" {
		return fmt.Errorf("event_db_path is required")
	}
	if c.EventRetentionDays <= 0 {
		return fmt.Errorf("event_retention_days must be positive (got %d)", c.EventRetentionDays)
	}
	if c.CleanupIntervalMinutes <= 0 {
		return fmt.Errorf("cleanup_interval_minutes must be positive (got %d)", c.CleanupIntervalMinutes)
	}
	return nil
}

// CleanupInterval returns the retention pass interval as a duration
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

// ShutdownGrace returns the shutdown grace period as a duration
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}
