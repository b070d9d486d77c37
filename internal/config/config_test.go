package config

import (
	"testing"
	"time"
)

func baseConfig() *Config {
	cfg := &Config{}
	cfg.Upstream.BaseURL = "https://example.test/proxy"
	cfg.Database.DSN = "postgres://x"
	cfg.Redis.Addr = "localhost:6379"
	cfg.applyDefaults()
	return cfg
}

func TestDefaultsApplied(t *testing.T) {
	cfg := baseConfig()

	if got := cfg.Upstream.PageSizes; len(got) != 4 || got[0] != 1000 || got[3] != 50 {
		t.Fatalf("unexpected default page sizes: %v", got)
	}
	if cfg.Upstream.Year != time.Now().Year() {
		t.Fatalf("expected current year default, got %d", cfg.Upstream.Year)
	}
	if cfg.Worker.Workers != 2 || cfg.Worker.MaxAttempts != 3 || cfg.Worker.BackoffBaseMs != 2000 {
		t.Fatalf("unexpected worker defaults: %+v", cfg.Worker)
	}
	if cfg.Gate.MinSpacingMs != 5000 || cfg.Gate.EntryTTLMs != 600000 {
		t.Fatalf("unexpected gate defaults: %+v", cfg.Gate)
	}
	if cfg.Token.RefreshMs != 270000 || cfg.Token.JitterPct != 0.1 {
		t.Fatalf("unexpected token defaults: %+v", cfg.Token)
	}
	if cfg.Database.MigrationsDir != "db/migrations" {
		t.Fatalf("unexpected migrations dir default: %q", cfg.Database.MigrationsDir)
	}
}

func TestValidateAcceptsFallbackOnlyLLM(t *testing.T) {
	cfg := baseConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsHalfConfiguredLLM(t *testing.T) {
	cfg := baseConfig()
	cfg.LLM.DefaultProvider = "openai"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for openai without key/model")
	}

	cfg.LLM.OpenAI.APIKey = "sk-test"
	cfg.LLM.OpenAI.Model = "gpt-test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid once fully configured, got %v", err)
	}
}

func TestValidateRejectsNonDescendingPageSizes(t *testing.T) {
	cfg := baseConfig()
	cfg.Upstream.PageSizes = []int{100, 500}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for ascending page sizes")
	}

	cfg.Upstream.PageSizes = []int{500, 0}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for non-positive page size")
	}
}

func TestValidateRequiresCoreEndpoints(t *testing.T) {
	cfg := baseConfig()
	cfg.Upstream.BaseURL = " "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing upstream baseURL")
	}

	cfg = baseConfig()
	cfg.Database.DSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing dsn")
	}

	cfg = baseConfig()
	cfg.Redis.Addr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing redis addr")
	}
}
