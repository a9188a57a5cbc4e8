package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStages()
	c.normalizeRemotes()
	c.normalizeLock()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if value, ok := os.LookupEnv("COVERS_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.CoversDir = value
	}
	if c.Paths.CoversDir, err = expandPath(strings.TrimSpace(c.Paths.CoversDir)); err != nil {
		return fmt.Errorf("paths.covers_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("COVERCAT_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeStages() {
	if c.Stages == nil {
		c.Stages = map[string]StageSettings{}
	}
	normalized := make(map[string]StageSettings, len(c.Stages))
	for name, settings := range c.Stages {
		normalized[strings.ToLower(strings.TrimSpace(name))] = settings
	}
	c.Stages = normalized
	if c.Workflow.BatchDefaultLimit <= 0 {
		c.Workflow.BatchDefaultLimit = defaultBatchLimit
	}
	if c.Review.SnapshotLimit <= 0 {
		c.Review.SnapshotLimit = defaultSnapshotLimit
	}
}

func (c *Config) normalizeRemotes() {
	c.Ollama.BaseURL = strings.TrimRight(strings.TrimSpace(c.Ollama.BaseURL), "/")
	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = defaultOllamaBaseURL
	}
	if value, ok := os.LookupEnv("VISION_TITLE_MODEL"); ok && strings.TrimSpace(value) != "" {
		c.Ollama.TitleModel = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("VISION_TEAM_MODEL"); ok && strings.TrimSpace(value) != "" {
		c.Ollama.TeamModel = strings.TrimSpace(value)
	}
	if value, ok := os.LookupEnv("TRANSLATION_MODEL"); ok && strings.TrimSpace(value) != "" {
		c.Ollama.TranslationModel = strings.TrimSpace(value)
	}

	c.IMDb.BaseURL = strings.TrimRight(strings.TrimSpace(c.IMDb.BaseURL), "/")
	if c.IMDb.BaseURL == "" {
		c.IMDb.BaseURL = defaultIMDbBaseURL
	}
	if strings.TrimSpace(c.IMDb.UserAgent) == "" {
		c.IMDb.UserAgent = defaultIMDbUserAgent
	}

	if c.OMDb.APIKey == "" {
		if value, ok := os.LookupEnv("OMDB_API_KEY"); ok {
			c.OMDb.APIKey = strings.TrimSpace(value)
		}
	}
	c.OMDb.BaseURL = strings.TrimSpace(c.OMDb.BaseURL)
	if c.OMDb.BaseURL == "" {
		c.OMDb.BaseURL = defaultOMDbBaseURL
	}
	c.OMDb.Plot = strings.ToLower(strings.TrimSpace(c.OMDb.Plot))
	if c.OMDb.Plot == "" {
		c.OMDb.Plot = defaultOMDbPlot
	}
}

func (c *Config) normalizeLock() {
	if c.Lock.RedisAddr == "" {
		if value, ok := os.LookupEnv("COVERCAT_REDIS_ADDR"); ok {
			c.Lock.RedisAddr = value
		}
	}
	c.Lock.RedisAddr = strings.TrimSpace(c.Lock.RedisAddr)
	if strings.TrimSpace(c.Lock.KeyPrefix) == "" {
		c.Lock.KeyPrefix = defaultLockKeyPrefix
	}
	if c.Lock.TTLSeconds <= 0 {
		c.Lock.TTLSeconds = defaultLockTTLSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
	if c.Notifications.BatchMinItems <= 0 {
		c.Notifications.BatchMinItems = defaultNtfyBatchMinItems
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
