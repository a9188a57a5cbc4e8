package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"covercat/internal/config"
	"covercat/internal/services/ollama"
	"covercat/internal/stages"
	"covercat/internal/testsupport"
)

// stubChat answers vision prompts by model name.
type stubChat struct {
	answers map[string]string
}

func (s stubChat) Chat(_ context.Context, model string, _ []ollama.Message) (string, error) {
	answer, ok := s.answers[model]
	if !ok {
		return "", fmt.Errorf("unexpected model %q", model)
	}
	return answer, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	coversDir  string
	chat       stubChat
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("COVERS_DIR", "")
	t.Setenv("OMDB_API_KEY", "")
	t.Setenv("COVERCAT_REDIS_ADDR", "")
	t.Setenv("COVERCAT_API_TOKEN", "")
	for _, key := range []string{"VISION_TITLE_MODEL", "VISION_TEAM_MODEL", "TRANSLATION_MODEL"} {
		t.Setenv(key, "")
	}

	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.CoversDir, 0o755); err != nil {
		t.Fatalf("mkdir covers: %v", err)
	}
	configPath := filepath.Join(base, "covercat.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		coversDir:  cfg.Paths.CoversDir,
		chat: stubChat{answers: map[string]string{
			cfg.Ollama.TitleModel: "Alien",
			cfg.Ollama.TeamModel:  "Ridley Scott, Sigourney Weaver",
		}},
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFlag := e.configPath
	ctx := newCommandContext(&configFlag)
	ctx.clients = func(cfg *config.Config) stages.Clients {
		clients := stages.NewClients(cfg)
		clients.Chat = e.chat
		return clients
	}
	cmd := buildRootCommand(ctx, &configFlag)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func (e *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("covercat %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
covers_dir = %q
api_bind = %q

[omdb]
api_key = %q

[ollama]
title_model = %q
team_model = %q

[logging]
level = "error"
`,
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.CoversDir,
		cfg.Paths.APIBind,
		cfg.OMDb.APIKey,
		cfg.Ollama.TitleModel,
		cfg.Ollama.TeamModel,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
