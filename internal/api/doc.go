// Package api defines wire-format types and converters shared by the HTTP
// API, the IPC layer and the CLI. It translates store models into
// transport-friendly DTOs so consumers never couple to internal types.
//
// # Key Types
//
// QueueItem: transport representation of an outbound queue item. Form
// payloads pass through as raw JSON; image and signature blobs are reported
// by size only.
//
// DaemonStatus: daemon running state, store mode, connectivity, orchestrator
// and worker activity, and preflight results.
//
// Ribbon: an undismissed "changed on the server" marker on a cached entity.
//
// # Services
//
// QueueService wraps the local store with the listing, enqueue, retry and
// discard actions exposed to operators. RetryFailedItems and DiscardItems
// report a per-id outcome so callers can explain skipped ids.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Every queue item is addressed by kind and id together: ids are only unique
// within one queue.
package api
