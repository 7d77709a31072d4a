// Package notifications pushes operator-facing sync events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Each event type can be switched off in the
// [notifications] config section.
package notifications
