// Package review implements the operator side of the workflow: the snapshot
// of record counts and the review queue, plus the approve, retry-from, and
// mark-review overrides. Every mutation takes the same per-record lock and
// version compare-and-swap the engine uses.
package review
