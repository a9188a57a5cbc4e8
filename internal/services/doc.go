// Package services defines shared utilities consumed by the stage handlers and
// the remote clients they call.
//
// Key responsibilities:
//   - Context helpers that stamp record IDs, stage names, and request
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so remote failures can be
//     classified as retryable or permanent by the workflow engine.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability) stays uniform across the pipeline.
package services
