// Package main hosts the covercat CLI entrypoint and command graph.
//
// Commands open the record store directly, so ingesting, running, and
// reviewing covers works without a daemon. `covercat serve` starts the
// long-running process that exposes the same operations over HTTP and can
// watch the covers directory for new files.
package main
