// Package preflight provides readiness checks for the filesystem paths and
// the remote API that fieldsync depends on.
//
// The daemon runs RunAll at startup and logs every failed check without
// refusing to start: an unwritable data directory degrades the local store,
// and an unreachable remote only delays delivery. The CLI status command
// renders the same results.
package preflight
