// Package workflow advances records through the registered stages.
//
// Engine.Run executes exactly one stage for one record: it takes the
// per-record lock, claims the row with a version compare-and-swap, invokes the
// stage handler outside any database transaction, and persists either the
// merged attributes (advancing current_stage) or the failure together with
// the retry/escalation decision. Runs never chain into the next stage; the
// Coordinator sequences runs over batches and applies the inter-item delay
// that rate-limited stages require.
package workflow
