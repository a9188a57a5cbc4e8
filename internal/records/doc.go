// Package records persists cover records in SQLite and exposes the
// compare-and-swap primitives the workflow engine and review queue use to
// mutate them.
//
// A Record carries its domain attributes (title, team, IMDb link, OMDb
// payload, translated plot) as a JSON object next to the workflow columns:
// current stage, status, per-stage attempt counts, review reason, and last
// error. Every write bumps a version column, and Claim/Save refuse to apply a
// change computed from a stale version, which is how per-record single-writer
// discipline survives concurrent callers and separate processes.
//
// The store never interprets stage order; that lives in the stage registry.
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package records
