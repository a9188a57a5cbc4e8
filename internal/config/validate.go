package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateRemotes(); err != nil {
		return err
	}
	if err := c.validateCover(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxAttempts <= 0 {
		return errors.New("workflow.max_attempts must be positive")
	}
	if c.Workflow.StageTimeoutSeconds <= 0 {
		return errors.New("workflow.stage_timeout_seconds must be positive")
	}
	if c.Workflow.RateLimitDelayMS < 0 {
		return errors.New("workflow.rate_limit_delay_ms must be non-negative")
	}
	return nil
}

func (c *Config) validateStages() error {
	for name, settings := range c.Stages {
		if name == "" {
			return errors.New("stages: empty stage name")
		}
		if settings.TimeoutSeconds < 0 {
			return fmt.Errorf("stages.%s.timeout_seconds must be non-negative", name)
		}
		if settings.MaxAttempts < 0 {
			return fmt.Errorf("stages.%s.max_attempts must be non-negative", name)
		}
		if settings.DelayMS != nil && *settings.DelayMS < 0 {
			return fmt.Errorf("stages.%s.delay_ms must be non-negative", name)
		}
	}
	return nil
}

func (c *Config) validateRemotes() error {
	for key, raw := range map[string]string{
		"ollama.base_url": c.Ollama.BaseURL,
		"imdb.base_url":   c.IMDb.BaseURL,
		"omdb.base_url":   c.OMDb.BaseURL,
	} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
		}
	}
	if c.IMDb.MaxResults <= 0 {
		return errors.New("imdb.max_results must be positive")
	}
	switch c.OMDb.Plot {
	case "short", "full":
	default:
		return fmt.Errorf("omdb.plot must be short or full, got %q", c.OMDb.Plot)
	}
	if strings.TrimSpace(c.Ollama.TitleModel) == "" || strings.TrimSpace(c.Ollama.TeamModel) == "" {
		return errors.New("ollama.title_model and ollama.team_model must be set")
	}
	if strings.TrimSpace(c.Ollama.TranslationModel) == "" {
		return errors.New("ollama.translation_model must be set")
	}
	return nil
}

func (c *Config) validateCover() error {
	if c.Cover.MaxDimension <= 0 {
		return errors.New("cover.max_dimension must be positive")
	}
	if c.Cover.JPEGQuality < 1 || c.Cover.JPEGQuality > 100 {
		return errors.New("cover.jpeg_quality must be between 1 and 100")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.NtfyTopic)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be a full topic URL, got %q", c.Notifications.NtfyTopic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
