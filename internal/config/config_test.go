package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got %v", err)
	}
	if cfg.Performance.QuickAnalysisTimeout != 60*time.Second {
		t.Errorf("Expected 60s quick timeout, got %s", cfg.Performance.QuickAnalysisTimeout)
	}
	if cfg.Cache.SweepInterval != 5*time.Minute {
		t.Errorf("Expected 5m sweep interval, got %s", cfg.Cache.SweepInterval)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log_level: debug
performance:
  quick_analysis_timeout: 30s
cache:
  ttl:
    full_report: 12h
conversion:
  variants:
    - name: a
      traffic: 70
    - name: b
      traffic: 30
      strategy: urgency
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level from file, got %q", cfg.LogLevel)
	}
	if cfg.Performance.QuickAnalysisTimeout != 30*time.Second {
		t.Errorf("Expected 30s from file, got %s", cfg.Performance.QuickAnalysisTimeout)
	}
	if cfg.Cache.TTL.FullReport != 12*time.Hour {
		t.Errorf("Expected 12h full report TTL, got %s", cfg.Cache.TTL.FullReport)
	}
	if cfg.Cache.TTL.ImageFeatures != 24*time.Hour {
		t.Errorf("Expected untouched default for image features TTL, got %s", cfg.Cache.TTL.ImageFeatures)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Expected env port override, got %q", cfg.Server.Port)
	}
	if len(cfg.Conversion.Variants) != 2 || cfg.Conversion.Variants[1].Strategy != "urgency" {
		t.Errorf("Expected variants from file, got %+v", cfg.Conversion.Variants)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = "abc" }},
		{"zero quick timeout", func(c *Config) { c.Performance.QuickAnalysisTimeout = 0 }},
		{"no mime types", func(c *Config) { c.Image.AllowedMIMETypes = nil }},
		{"inverted bounds", func(c *Config) { c.Image.MaxWidth = 10 }},
		{"jpeg quality", func(c *Config) { c.Image.JPEGQuality = 0 }},
		{"unknown step", func(c *Config) { c.Image.EnhancementSteps = []string{"blur"} }},
		{"openai without url", func(c *Config) { c.AI.Provider = ProviderOpenAICompatible }},
		{"unknown provider", func(c *Config) { c.AI.Provider = "legacy" }},
		{"traffic sum", func(c *Config) { c.Conversion.Variants[0].Traffic = 10 }},
		{"unknown strategy", func(c *Config) { c.Conversion.Variants[1].Strategy = "bogus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestServerAddress(t *testing.T) {
	cfg := Default()
	cfg.Server.Host = " 127.0.0.1 "
	cfg.Server.Port = "8081"
	if got := cfg.ServerAddress(); got != "127.0.0.1:8081" {
		t.Errorf("Expected 127.0.0.1:8081, got %s", got)
	}
}
