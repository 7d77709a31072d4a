// Package main hosts the fieldsync CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC calls
// against the daemon: queue inspection and maintenance, manual sync, ribbon
// review, cache refresh and configuration scaffolding. Queue reads fall back
// to the local store when the daemon is not running.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
