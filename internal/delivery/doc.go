// Package delivery drains the outbound queues. ProcessQueue runs one pass
// over a queue: every due item is marked sending and handed to a Sender;
// delivered items are deleted, rejected ones are rescheduled with
// exponential backoff until their retry budget is spent, at which point they
// stay failed for a human to retry or discard.
//
// A pass never returns an error. Store failures, a degraded store and
// panicking senders all surface as counts in the Result and as log lines.
package delivery
