// Package workflow hosts the sync orchestrator.
//
// The Manager decides when queued work should be delivered and relays the
// outcome of every delivery attempt to interested listeners. It wakes the
// worker on startup, on a poll timer, whenever connectivity returns, and on
// explicit requests, and it arms the platform background-sync registration
// so that a pending sync survives until the network is back.
//
// Each Manager owns its subscriptions; there is no package-level state.
// StartSync and StopSync may be called any number of times.
package workflow
