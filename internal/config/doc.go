// Package config loads, normalizes, and validates fieldsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FIELDSYNC_REMOTE_TOKEN. The Config type centralizes every knob the daemon
// and CLI need: where the local store lives, how delivery backs off, how the
// orchestrator reaches the remote API, and where cross-process broadcast
// messages are exchanged.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
