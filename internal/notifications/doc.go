// Package notifications pushes workflow events to ntfy.
//
// NewService returns a no-op notifier when no topic is configured. Each event
// is gated by its own toggle in the [notifications] config section so callers
// can publish unconditionally.
package notifications
