// Package broadcast carries sync events between every context that shares a
// local store: the worker, the orchestrator, the HTTP event stream and other
// processes on the same host.
//
// Hub fans messages out to in-process subscribers. DirChannel extends a Hub
// across processes by dropping each message as a file into a shared
// directory that every participant watches.
package broadcast
