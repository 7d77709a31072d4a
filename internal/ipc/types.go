package ipc

import (
	"fieldsync/internal/api"
)

// QueueItem mirrors the HTTP API queue DTO for internal IPC callers.
type QueueItem = api.QueueItem

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and orchestrator status.
type StatusResponse = api.DaemonStatus

// QueueListRequest filters queue listing by kind and status. Empty slices
// match everything.
type QueueListRequest struct {
	Kinds    []string `json:"kinds"`
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueRetryRequest requeues failed items of one kind. No ids retries every
// failed item of that kind.
type QueueRetryRequest struct {
	Kind string  `json:"kind"`
	IDs  []int64 `json:"ids"`
}

// QueueRetryResponse reports per-item outcomes.
type QueueRetryResponse = api.ItemsResult

// QueueDiscardRequest deletes items of one kind.
type QueueDiscardRequest struct {
	Kind  string  `json:"kind"`
	IDs   []int64 `json:"ids"`
	Force bool    `json:"force"`
}

// QueueDiscardResponse reports per-item outcomes.
type QueueDiscardResponse = api.ItemsResult

// QueueClearFailedRequest removes failed items of the given kinds.
type QueueClearFailedRequest struct {
	Kinds []string `json:"kinds"`
}

// QueueClearFailedResponse reports how many items were removed.
type QueueClearFailedResponse struct {
	Removed int64 `json:"removed"`
}

// EnqueueRequest stores a new queue item.
type EnqueueRequest struct {
	Kind string `json:"kind"`
	api.EnqueueRequest
}

// EnqueueResponse reports the stored item.
type EnqueueResponse = api.EnqueueResponse

// SyncNowRequest asks for a manual sync.
type SyncNowRequest struct{}

// SyncNowResponse reports whether the worker accepted the request.
type SyncNowResponse = api.SyncResponse

// RibbonsRequest lists undismissed ribbons.
type RibbonsRequest struct{}

// RibbonsResponse contains ribbons.
type RibbonsResponse = api.RibbonListResponse

// DismissRibbonRequest clears one ribbon.
type DismissRibbonRequest struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// DismissRibbonResponse reports whether a ribbon was present.
type DismissRibbonResponse = api.DismissResponse

// RefreshRequest pulls server copies of one cache.
type RefreshRequest struct {
	Collection string `json:"collection"`
}

// RefreshResponse summarizes a refresh.
type RefreshResponse = api.RefreshResponse

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification result.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
