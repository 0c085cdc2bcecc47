package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// unsetEnv removes keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatalf("unsetenv %s: %v", k, err)
		}
	}
}

func validConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{Token: "123:abc", RecipientID: -100500},
		Webhook:  WebhookConfig{URL: "https://bot.example.com/"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Webhook.URL != "https://bot.example.com" {
		t.Fatalf("trailing slash not trimmed: %s", cfg.Webhook.URL)
	}
	if got := cfg.WebhookURL(); got != "https://bot.example.com/123:abc" {
		t.Fatalf("webhook url = %s", got)
	}
	if cfg.ListenAddr() != "0.0.0.0:8443" {
		t.Fatalf("listen addr = %s", cfg.ListenAddr())
	}
	if cfg.Webhook.HealthPath != "/health" || cfg.Webhook.MetricsPath != "/metrics" {
		t.Fatalf("unexpected paths: %+v", cfg.Webhook)
	}
	if cfg.Dispatch.Workers != defaultWorkers || cfg.Dispatch.KeyBacklog != defaultKeyBacklog {
		t.Fatalf("dispatch defaults not applied: %+v", cfg.Dispatch)
	}
	if cfg.Delivery.Retries() != defaultMaxRetries {
		t.Fatalf("delivery defaults not applied: %+v", cfg.Delivery)
	}
	if cfg.Texts.Welcome == "" {
		t.Fatal("texts defaults not applied")
	}
	if cfg.Database.Enabled() {
		t.Fatal("database should be disabled without host")
	}
}

func TestNormalizeRequiredFields(t *testing.T) {
	cases := map[string]func(*Config){
		"BOT_TOKEN":           func(c *Config) { c.Telegram.Token = " " },
		"GROUP_CHAT_ID":       func(c *Config) { c.Telegram.RecipientID = 0 },
		"RENDER_EXTERNAL_URL": func(c *Config) { c.Webhook.URL = "" },
		"absolute":            func(c *Config) { c.Webhook.URL = "bot.example.com" },
		"port":                func(c *Config) { c.Webhook.Port = 70000 },
		"key_backlog":         func(c *Config) { c.Dispatch.QueueSize = 4; c.Dispatch.KeyBacklog = 8 },
		"max_retries":         func(c *Config) { retries := -1; c.Delivery.MaxRetries = &retries },
		"differ":              func(c *Config) { c.Webhook.HealthPath = "/123:abc" },
	}
	for want, mutate := range cases {
		cfg := validConfig()
		mutate(cfg)
		err := Normalize(cfg)
		if err == nil {
			t.Fatalf("%s: expected error", want)
		}
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: unexpected error %v", want, err)
		}
	}
}

func TestNormalizeKeepsZeroRetries(t *testing.T) {
	cfg := validConfig()
	zero := 0
	cfg.Delivery.MaxRetries = &zero
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got := cfg.Delivery.Retries(); got != 0 {
		t.Fatalf("retries = %d, want 0", got)
	}
}

func TestLoadZeroRetriesFromEnv(t *testing.T) {
	unsetEnv(t, "PORT", "WEBHOOK_LISTEN")
	t.Setenv("BOT_TOKEN", "777:env")
	t.Setenv("GROUP_CHAT_ID", "-42")
	t.Setenv("RENDER_EXTERNAL_URL", "https://env.example.com")
	t.Setenv("DELIVERY_MAX_RETRIES", "0")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Delivery.Retries(); got != 0 {
		t.Fatalf("retries = %d, want 0", got)
	}
}

func TestNormalizeDatabaseDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Host = "db"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Database.Port != "5432" || cfg.Database.SSLMode != "disable" || cfg.Database.MigrationsDir != "migrations" {
		t.Fatalf("database defaults not applied: %+v", cfg.Database)
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
telegram:
  token: "from-yaml"
  recipient_id: -42
webhook:
  url: https://yaml.example.com
  port: 9000
texts:
  welcome: "Hello!"
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	unsetEnv(t, "PORT", "GROUP_CHAT_ID", "RENDER_EXTERNAL_URL")
	t.Setenv("BOT_TOKEN", "777:env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "777:env" {
		t.Fatalf("env did not override token: %s", cfg.Telegram.Token)
	}
	if cfg.Telegram.RecipientID != -42 || cfg.Webhook.Port != 9000 {
		t.Fatalf("yaml values lost: %+v %+v", cfg.Telegram, cfg.Webhook)
	}
	if cfg.Texts.Welcome != "Hello!" || cfg.Texts.AskPhone == "" {
		t.Fatalf("texts not merged: %+v", cfg.Texts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
