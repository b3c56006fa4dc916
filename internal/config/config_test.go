package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"threshold above range", func(c *Config) { c.Sensitivity.ApprovalThreshold = 120 }},
		{"zero top_k", func(c *Config) { c.Analysis.TopK = 0 }},
		{"zero run timeout", func(c *Config) { c.Analysis.RunTimeout = 0 }},
		{"zero breaker threshold", func(c *Config) { c.Breaker.FailureThreshold = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sensitivity.ApprovalThreshold != 50 {
		t.Fatalf("approval threshold = %d, want default 50", cfg.Sensitivity.ApprovalThreshold)
	}
	if cfg.Analysis.RunTimeout != 180*time.Second {
		t.Fatalf("run timeout = %s, want default 180s", cfg.Analysis.RunTimeout)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "log:\n  level: debug\nanalysis:\n  top_k: 3\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level = %s, want debug", cfg.Log.Level)
	}
	if cfg.Analysis.TopK != 3 {
		t.Fatalf("top_k = %d, want 3", cfg.Analysis.TopK)
	}
	// Untouched keys keep their defaults.
	if cfg.Conversation.IdleExpiry != 24*time.Hour {
		t.Fatalf("idle expiry = %s, want default 24h", cfg.Conversation.IdleExpiry)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("loading a missing file must fail")
	}
}
