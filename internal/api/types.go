package api

import (
	"encoding/json"

	"fieldsync/internal/broadcast"
	"fieldsync/internal/preflight"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a queue entry in a transport-friendly format.
type QueueItem struct {
	ID            int64           `json:"id"`
	Kind          string          `json:"kind"`
	Store         string          `json:"store"`
	Status        string          `json:"status"`
	RetryCount    int             `json:"retryCount"`
	NextAttemptAt string          `json:"nextAttemptAt,omitempty"`
	LastError     string          `json:"lastError,omitempty"`
	CreatedAt     string          `json:"createdAt,omitempty"`
	UpdatedAt     string          `json:"updatedAt,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	BlobSize      int             `json:"blobSize,omitempty"`
}

// QueueListResponse wraps a list of queue items.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueItemResponse wraps a single queue item.
type QueueItemResponse struct {
	Item QueueItem `json:"item"`
}

// EnqueueRequest carries the content of a new queue item. Blob is base64
// encoded in JSON.
type EnqueueRequest struct {
	Payload  json.RawMessage `json:"payload,omitempty"`
	Blob     []byte          `json:"blob,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// EnqueueResponse reports the stored item. Durable is false when the local
// store is degraded and nothing was persisted.
type EnqueueResponse struct {
	Item    *QueueItem `json:"item,omitempty"`
	Durable bool       `json:"durable"`
}

// CountResponse reports how many rows an action touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// SyncResponse reports the result of a manual sync request.
type SyncResponse struct {
	Triggered bool   `json:"triggered"`
	Message   string `json:"message"`
}

// WorkflowStatus summarizes the sync orchestrator.
type WorkflowStatus struct {
	Running        bool                      `json:"running"`
	Listeners      int                       `json:"listeners"`
	WorkerAttached bool                      `json:"workerAttached"`
	BackgroundSync bool                      `json:"backgroundSync"`
	LastEvent      *broadcast.Message        `json:"lastEvent,omitempty"`
	LastEventAt    string                    `json:"lastEventAt,omitempty"`
	QueueStats     map[string]map[string]int `json:"queueStats,omitempty"`
}

// WorkerStatus summarizes background worker activity.
type WorkerStatus struct {
	Running     bool   `json:"running"`
	Passes      int    `json:"passes"`
	LastPass    string `json:"lastPass,omitempty"`
	LastTrigger string `json:"lastTrigger,omitempty"`
	Processed   int    `json:"processed"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	Deferred    int    `json:"deferred"`
}

// ConnectivityStatus mirrors the connectivity monitor snapshot.
type ConnectivityStatus struct {
	State     string `json:"state"`
	ChangedAt string `json:"changedAt,omitempty"`
	LastError string `json:"lastError,omitempty"`
	Netlink   bool   `json:"netlink"`
}

// DaemonStatus aggregates runtime information.
type DaemonStatus struct {
	Running        bool               `json:"running"`
	PID            int                `json:"pid"`
	DatabasePath   string             `json:"databasePath,omitempty"`
	LockFilePath   string             `json:"lockFilePath"`
	StoreAvailable bool               `json:"storeAvailable"`
	StoreReason    string             `json:"storeReason,omitempty"`
	RemoteURL      string             `json:"remoteUrl,omitempty"`
	Connectivity   ConnectivityStatus `json:"connectivity"`
	Workflow       WorkflowStatus     `json:"workflow"`
	Worker         WorkerStatus       `json:"worker"`
	ArmedTags      []string           `json:"armedTags,omitempty"`
	Preflight      []preflight.Result `json:"preflight,omitempty"`
}

// Ribbon marks a cached entity whose local edit was replaced by a server change.
type Ribbon struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	UpdatedBy  string `json:"updatedBy"`
	UpdatedAt  string `json:"updatedAt"`
}

// RibbonListResponse wraps a list of ribbons.
type RibbonListResponse struct {
	Ribbons []Ribbon `json:"ribbons"`
}

// DismissResponse reports whether a ribbon was present.
type DismissResponse struct {
	Dismissed bool `json:"dismissed"`
}

// RefreshResponse reports a cache refresh.
type RefreshResponse struct {
	Collection  string `json:"collection"`
	Fetched     int    `json:"fetched"`
	Overwritten int    `json:"overwritten"`
	KeptLocal   int    `json:"keptLocal"`
	Skipped     int    `json:"skipped"`
}
