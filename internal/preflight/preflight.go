package preflight

import (
	"context"
	"strings"

	"covercat/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Data directory holds the database (always checked)
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))

	// Covers are only read
	if cfg.Paths.CoversDir != "" {
		results = append(results, CheckReadableDirectory("Covers directory", cfg.Paths.CoversDir))
	}

	results = append(results, CheckOllama(ctx, cfg.Ollama))
	results = append(results, CheckOMDbKey(cfg.OMDb.APIKey))

	if strings.TrimSpace(cfg.Lock.RedisAddr) != "" {
		results = append(results, CheckRedis(ctx, cfg.Lock.RedisAddr))
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
