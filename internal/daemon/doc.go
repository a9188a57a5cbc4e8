// Package daemon coordinates the long-running covercat process.
//
// It wires configuration, the record store, the workflow engine, the review
// service, and folder ingestion into a single lifecycle with flock-based
// locking to prevent multiple instances. On start it returns records left
// running by a crashed process to their prior status, optionally watches the
// covers directory, and serves the HTTP API.
//
// Keep orchestration logic here: stage semantics live in workflow and review
// while the daemon focuses on startup, shutdown, and transport.
package daemon
