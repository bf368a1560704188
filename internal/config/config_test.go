package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.ListenAddr != ":8090" {
		t.Errorf("listen addr default = %q", cfg.ListenAddr)
	}
	if cfg.EventRetentionDays != 30 {
		t.Errorf("retention default = %d", cfg.EventRetentionDays)
	}
	if cfg.ShutdownGrace() != 30*time.Second {
		t.Errorf("shutdown grace default = %v", cfg.ShutdownGrace())
	}
	if cfg.CleanupInterval() != time.Hour {
		t.Errorf("cleanup interval default = %v", cfg.CleanupInterval())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen_addr: ":9999"
scheduler: prod-reviews
event_retention_days: 7
github:
  bot_login: prodbot[bot]
ai:
  requests_per_minute: 10
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("listen_addr = %q", cfg.ListenAddr)
	}
	if cfg.Scheduler != "prod-reviews" {
		t.Errorf("scheduler = %q", cfg.Scheduler)
	}
	if cfg.EventRetentionDays != 7 {
		t.Errorf("event_retention_days = %d", cfg.EventRetentionDays)
	}
	if cfg.GitHub.BotLogin != "prodbot[bot]" {
		t.Errorf("bot_login = %q", cfg.GitHub.BotLogin)
	}
	if cfg.AI.RequestsPerMinute != 10 {
		t.Errorf("requests_per_minute = %d", cfg.AI.RequestsPerMinute)
	}
	// Untouched fields keep defaults
	if cfg.LedgerPath != ".reviewloop/ledger.yaml" {
		t.Errorf("ledger_path = %q", cfg.LedgerPath)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":9999\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("REVIEWLOOP_LISTEN_ADDR", ":7777")
	t.Setenv("REVIEWLOOP_WEBHOOK_SECRET", "s3cret")
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("env should beat file: listen_addr = %q", cfg.ListenAddr)
	}
	if cfg.WebhookSecret != "s3cret" {
		t.Errorf("webhook secret not picked up from env")
	}
	if cfg.GitHubToken != "ghp_test" {
		t.Errorf("github token not picked up from env")
	}
}

func TestSecretsNeverFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("webhooksecret: leaked\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REVIEWLOOP_WEBHOOK_SECRET", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WebhookSecret != "" {
		t.Errorf("webhook secret must not load from file: %q", cfg.WebhookSecret)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }},
		{"empty ledger path", func(c *Config) { c.LedgerPath = "" }},
		{"empty event db path", func(c *Config) { c.EventDBPath = "" }},
		{"zero retention", func(c *Config) { c.EventRetentionDays = 0 }},
		{"zero cleanup interval", func(c *Config) { c.CleanupIntervalMinutes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
