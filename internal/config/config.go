package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	CoversDir string `toml:"covers_dir"`
	APIBind   string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on mutating API routes.
	APIToken  string `toml:"api_token"`
}

// Workflow contains engine-wide retry and pacing defaults.
type Workflow struct {
	MaxAttempts         int `toml:"max_attempts"`
	StageTimeoutSeconds int `toml:"stage_timeout_seconds"`
	RateLimitDelayMS    int `toml:"rate_limit_delay_ms"`
	BatchDefaultLimit   int `toml:"batch_default_limit"`
}

// StageSettings overrides workflow defaults for one named stage. Zero values
// and nil pointers fall back to the workflow section or the stage's built-in
// descriptor.
type StageSettings struct {
	TimeoutSeconds int   `toml:"timeout_seconds"`
	MaxAttempts    int   `toml:"max_attempts"`
	RateLimited    *bool `toml:"rate_limited"`
	DelayMS        *int  `toml:"delay_ms"`
}

// Review contains configuration for the review queue snapshot.
type Review struct {
	SnapshotLimit int `toml:"snapshot_limit"`
}

// Ollama contains the local model server settings used for cover reading and
// plot translation.
type Ollama struct {
	BaseURL          string `toml:"base_url"`
	TitleModel       string `toml:"title_model"`
	TeamModel        string `toml:"team_model"`
	TranslationModel string `toml:"translation_model"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// IMDb contains configuration for the IMDb search and title scraping.
type IMDb struct {
	BaseURL        string `toml:"base_url"`
	UserAgent      string `toml:"user_agent"`
	MaxResults     int    `toml:"max_results"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// OMDb contains configuration for the OMDb metadata API.
type OMDb struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Plot           string `toml:"plot"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Cover contains image preparation settings for vision requests.
type Cover struct {
	MaxDimension int `toml:"max_dimension"`
	JPEGQuality  int `toml:"jpeg_quality"`
}

// Lock selects the per-record lock backend. An empty RedisAddr keeps locks
// in-process.
type Lock struct {
	RedisAddr  string `toml:"redis_addr"`
	KeyPrefix  string `toml:"key_prefix"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// Notifications contains configuration for ntfy push notifications. An empty
// topic disables them.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Review         bool   `toml:"review"`
	Batch          bool   `toml:"batch"`
	BatchMinItems  int    `toml:"batch_min_items"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for covercat.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and cover directories plus the API bind address
//   - Workflow: attempt limits, stage timeout, and pacing defaults
//   - Stages: per-stage overrides keyed by stage name
//   - Review: snapshot sizing
//   - Ollama, IMDb, OMDb: remote collaborators used by the stage handlers
//   - Cover: image preparation for vision prompts
//   - Lock: per-record lock backend
//   - Notifications: ntfy pushes for escalations and finished batches
//   - Logging: log format and level
type Config struct {
	Paths         Paths                    `toml:"paths"`
	Workflow      Workflow                 `toml:"workflow"`
	Stages        map[string]StageSettings `toml:"stages"`
	Review        Review                   `toml:"review"`
	Ollama        Ollama                   `toml:"ollama"`
	IMDb          IMDb                     `toml:"imdb"`
	OMDb          OMDb                     `toml:"omdb"`
	Cover         Cover                    `toml:"cover"`
	Lock          Lock                     `toml:"lock"`
	Notifications Notifications            `toml:"notifications"`
	Logging       Logging                  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("covercat.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories. The covers
// directory is only created on a best-effort basis since it is usually a
// mounted scan folder.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.CoversDir) != "" {
		_ = os.MkdirAll(c.Paths.CoversDir, 0o755)
	}
	return nil
}

// DatabasePath returns the SQLite file holding record state.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "covercat.db")
}

// DaemonLockPath returns the lock file guarding a single API server.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.DataDir, "covercat.lock")
}

// LogFilePath returns the JSON log file written next to console output.
func (c *Config) LogFilePath() string {
	if c.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "covercat.log")
}

// StageTimeout returns the handler deadline for the named stage.
func (c *Config) StageTimeout(name string) time.Duration {
	if s, ok := c.Stages[name]; ok && s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	return time.Duration(c.Workflow.StageTimeoutSeconds) * time.Second
}

// StageMaxAttempts returns the escalation threshold for the named stage.
func (c *Config) StageMaxAttempts(name string) int {
	if s, ok := c.Stages[name]; ok && s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return c.Workflow.MaxAttempts
}

// StageRateLimited reports whether the named stage is paced between batch
// items, falling back to the supplied built-in value when not configured.
func (c *Config) StageRateLimited(name string, fallback bool) bool {
	if s, ok := c.Stages[name]; ok && s.RateLimited != nil {
		return *s.RateLimited
	}
	return fallback
}

// StageDelay returns the inter-item delay applied after a rate-limited stage.
func (c *Config) StageDelay(name string) time.Duration {
	if s, ok := c.Stages[name]; ok && s.DelayMS != nil {
		return time.Duration(*s.DelayMS) * time.Millisecond
	}
	return time.Duration(c.Workflow.RateLimitDelayMS) * time.Millisecond
}

// LockTTL returns the expiry applied to distributed record locks.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
