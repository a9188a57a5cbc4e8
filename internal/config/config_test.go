package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"covercat/internal/config"
)

func TestLoadDefaultConfigExpandsPathsAndUsesEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OMDB_API_KEY", "env-key")
	t.Setenv("COVERS_DIR", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "covercat")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.CoversDir != filepath.Join(tempHome, "covers") {
		t.Fatalf("unexpected covers dir: %q", cfg.Paths.CoversDir)
	}
	if cfg.OMDb.APIKey != "env-key" {
		t.Fatalf("expected OMDb key from env, got %q", cfg.OMDb.APIKey)
	}
	if cfg.Workflow.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts 3, got %d", cfg.Workflow.MaxAttempts)
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "covercat.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
}

func TestLoadCustomConfigWithStageOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
data_dir = "~/catalog"

[workflow]
max_attempts = 5
stage_timeout_seconds = 30
rate_limit_delay_ms = 250

[stages.IMDB]
max_attempts = 2
timeout_seconds = 10
delay_ms = 1500

[stages.translation]
rate_limited = true

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q, got %q exists=%v", configPath, resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "catalog") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if got := cfg.StageMaxAttempts("imdb"); got != 2 {
		t.Fatalf("expected imdb max attempts 2, got %d", got)
	}
	if got := cfg.StageMaxAttempts("omdb"); got != 5 {
		t.Fatalf("expected omdb max attempts to fall back to 5, got %d", got)
	}
	if got := cfg.StageTimeout("imdb"); got != 10*time.Second {
		t.Fatalf("expected imdb timeout 10s, got %s", got)
	}
	if got := cfg.StageTimeout("omdb"); got != 30*time.Second {
		t.Fatalf("expected omdb timeout 30s, got %s", got)
	}
	if got := cfg.StageDelay("imdb"); got != 1500*time.Millisecond {
		t.Fatalf("expected imdb delay 1.5s, got %s", got)
	}
	if got := cfg.StageDelay("omdb"); got != 250*time.Millisecond {
		t.Fatalf("expected omdb delay 250ms, got %s", got)
	}
	if !cfg.StageRateLimited("translation", false) {
		t.Fatal("expected translation rate limiting override")
	}
	if cfg.StageRateLimited("extraction", false) {
		t.Fatal("expected extraction to keep built-in pacing")
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %q/%q", cfg.Logging.Format, cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"max attempts", func(c *config.Config) { c.Workflow.MaxAttempts = 0 }, "workflow.max_attempts"},
		{"timeout", func(c *config.Config) { c.Workflow.StageTimeoutSeconds = -1 }, "workflow.stage_timeout_seconds"},
		{"omdb plot", func(c *config.Config) { c.OMDb.Plot = "medium" }, "omdb.plot"},
		{"imdb url", func(c *config.Config) { c.IMDb.BaseURL = "imdb" }, "imdb.base_url"},
		{"jpeg quality", func(c *config.Config) { c.Cover.JPEGQuality = 0 }, "cover.jpeg_quality"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"ntfy topic", func(c *config.Config) { c.Notifications.NtfyTopic = "my-covers" }, "notifications.ntfy_topic"},
		{"stage delay", func(c *config.Config) {
			negative := -5
			c.Stages["imdb"] = config.StageSettings{DelayMS: &negative}
		}, "stages.imdb.delay_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error for %s", tt.name)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[workflow]\nmax_retries = 4\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestCreateSampleParsesAsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if cfg.Workflow.MaxAttempts != 3 {
		t.Fatalf("expected sample max attempts 3, got %d", cfg.Workflow.MaxAttempts)
	}
	if _, ok := cfg.Stages["imdb"]; !ok {
		t.Fatal("expected sample to carry imdb stage overrides")
	}
}
