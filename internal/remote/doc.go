// Package remote talks to the dispatch API on behalf of the worker and the
// cache reconciler.
//
// Client.Send delivers one queue item: forms as JSON, images and signatures
// as multipart uploads. Every request carries an Idempotency-Key derived from
// the item kind, id and creation time, so a retried or duplicated delivery
// is recognisable by the server. Responses are classified into the
// services error taxonomy: 408, 429 and 5xx are transient, any other
// non-2xx status is a rejection.
package remote
