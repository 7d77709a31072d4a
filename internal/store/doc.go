// Package store is the durable local store: an embedded SQLite database
// holding two read-through caches (tasks, notifications) and three outbound
// queues (forms, images, signatures).
//
// Every operation is independently atomic; there are no cross-collection
// transactions. When storage cannot be opened, or is disabled by
// configuration, the Store runs degraded: every call returns a nil or empty
// result and a nil error so callers proceed without durability.
//
// Schema changes are additive only. New collections and columns ship as new
// files under migrations/; existing data is never rewritten on open.
package store
