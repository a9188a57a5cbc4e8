package config

const (
	defaultConfigPath          = "~/.config/covercat/config.toml"
	defaultDataDir             = "~/.local/share/covercat"
	defaultLogDir              = "~/.local/share/covercat/logs"
	defaultCoversDir           = "~/covers"
	defaultAPIBind             = "127.0.0.1:7580"
	defaultMaxAttempts         = 3
	defaultStageTimeoutSeconds = 120
	defaultRateLimitDelayMS    = 1000
	defaultBatchLimit          = 50
	defaultSnapshotLimit       = 200
	defaultOllamaBaseURL       = "http://127.0.0.1:11434"
	defaultTitleModel          = "gemma3:27b-it-qat"
	defaultTeamModel           = "qwen3-vl:32b"
	defaultTranslationModel    = "phi4:latest"
	defaultOllamaTimeout       = 180
	defaultIMDbBaseURL         = "https://www.imdb.com"
	defaultIMDbUserAgent       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultIMDbMaxResults      = 10
	defaultRequestTimeout      = 20
	defaultOMDbBaseURL         = "https://www.omdbapi.com/"
	defaultOMDbPlot            = "full"
	defaultCoverMaxDimension   = 1024
	defaultCoverJPEGQuality    = 90
	defaultLockKeyPrefix       = "covercat:lock:"
	defaultLockTTLSeconds      = 600
	defaultNtfyTimeout         = 10
	defaultNtfyBatchMinItems   = 1
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			CoversDir: defaultCoversDir,
			APIBind:   defaultAPIBind,
		},
		Workflow: Workflow{
			MaxAttempts:         defaultMaxAttempts,
			StageTimeoutSeconds: defaultStageTimeoutSeconds,
			RateLimitDelayMS:    defaultRateLimitDelayMS,
			BatchDefaultLimit:   defaultBatchLimit,
		},
		Stages: map[string]StageSettings{},
		Review: Review{
			SnapshotLimit: defaultSnapshotLimit,
		},
		Ollama: Ollama{
			BaseURL:          defaultOllamaBaseURL,
			TitleModel:       defaultTitleModel,
			TeamModel:        defaultTeamModel,
			TranslationModel: defaultTranslationModel,
			TimeoutSeconds:   defaultOllamaTimeout,
		},
		IMDb: IMDb{
			BaseURL:        defaultIMDbBaseURL,
			UserAgent:      defaultIMDbUserAgent,
			MaxResults:     defaultIMDbMaxResults,
			TimeoutSeconds: defaultRequestTimeout,
		},
		OMDb: OMDb{
			BaseURL:        defaultOMDbBaseURL,
			Plot:           defaultOMDbPlot,
			TimeoutSeconds: defaultRequestTimeout,
		},
		Cover: Cover{
			MaxDimension: defaultCoverMaxDimension,
			JPEGQuality:  defaultCoverJPEGQuality,
		},
		Lock: Lock{
			KeyPrefix:  defaultLockKeyPrefix,
			TTLSeconds: defaultLockTTLSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			Review:         true,
			Batch:          true,
			BatchMinItems:  defaultNtfyBatchMinItems,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
