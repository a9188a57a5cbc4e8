// Package api defines wire-format types, converters, and request validation
// for the HTTP API and the CLI's JSON output. It translates records, run
// outcomes, and review snapshots into transport-friendly DTOs so consumers
// never couple to internal types.
//
// # Key Types
//
// Record: transport representation of a cover record with attributes,
// per-stage attempts, and review details.
//
// RunOutcome/BatchResult: results of single and batch stage runs.
//
// Snapshot: counts by stage and status plus the review queue.
//
// DaemonStatus: serve process state, stage health, and preflight checks.
//
// # Requests
//
// RunRequest, BatchRunRequest, ApproveRequest, RetryRequest, and
// ReviewRequest carry validator tags; Validate checks them before any handler
// touches the store.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses and failure kinds are exposed as
// lowercase strings. Timestamps use RFC3339 with milliseconds in UTC.
package api
