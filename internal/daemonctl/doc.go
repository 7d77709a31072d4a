// Package daemonctl launches, locates and terminates the fieldsync daemon
// process on behalf of the CLI.
package daemonctl
