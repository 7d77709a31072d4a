// Package services defines shared utilities consumed by the sync engine's
// components and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp queue item IDs, collection names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so callers can tell a
//     degraded store from a transient delivery failure or a bad input.
//
// Use these helpers when wiring new components so operational behaviour
// (error handling, observability, retries) stays uniform across the engine.
package services
