// Package logs tails the daemon's JSON log file and filters entries by level,
// component, event type and queue store.
//
// Negative offsets read the last N lines; follow mode polls for new lines
// until the caller's context ends.
package logs
