// Package daemon coordinates the long-running fieldsync process.
//
// It ties the local store, the background worker, the connectivity monitor
// and the sync orchestrator into a single lifecycle with flock-based locking
// to prevent multiple instances on one data directory. The daemon exposes
// queue maintenance helpers, ribbon management and cache refreshes, and
// serves them over an optional HTTP API that also streams sync events over a
// websocket.
//
// Keep orchestration logic here: delivery, conflict resolution and message
// fan-out live in their own packages while the daemon focuses on startup,
// shutdown and high level coordination.
package daemon
