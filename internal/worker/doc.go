// Package worker runs delivery passes on behalf of every context that shares
// the local store. Contexts talk to it through a mailbox: process-now and
// manual-sync messages come from the orchestrator, sync messages come from
// the background-sync Registry when an armed tag fires.
//
// Each pass reclaims items stuck in sending, drains the form, image and
// signature queues in that order, and broadcasts one sync:success or
// sync:failure message per attempted item.
package worker
