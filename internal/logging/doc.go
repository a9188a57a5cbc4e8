// Package logging assembles structured slog loggers and formatting helpers used
// across covercat.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so workflow code can automatically
// tag log lines with record IDs, stages, and request IDs. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
