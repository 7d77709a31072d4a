package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind identifies an outbound queue.
type Kind string

const (
	KindForm      Kind = "form"
	KindImage     Kind = "image"
	KindSignature Kind = "signature"
)

// Kinds lists every queue in drain order.
var Kinds = []Kind{KindForm, KindImage, KindSignature}

// Collection returns the local store collection backing the queue.
func (k Kind) Collection() string {
	switch k {
	case KindForm:
		return "forms"
	case KindImage:
		return "images"
	case KindSignature:
		return "signatures"
	default:
		return ""
	}
}

// ParseKind accepts either the kind ("form") or its collection name ("forms").
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "form", "forms":
		return KindForm, nil
	case "image", "images":
		return KindImage, nil
	case "signature", "signatures":
		return KindSignature, nil
	default:
		return "", fmt.Errorf("unknown queue kind %q", value)
	}
}

// Status is the delivery state of a queue item. An item has exactly one
// status at a time.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusSending Status = "sending"
	StatusFailed  Status = "failed"
	// StatusDone is never persisted: delivered items are deleted.
	StatusDone Status = "done"
)

var allStatuses = []Status{StatusQueued, StatusSending, StatusFailed}

// AllStatuses returns the statuses an item can hold while stored.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a string into a known status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Item is one unit of outbound work awaiting delivery.
type Item struct {
	ID            int64
	Kind          Kind
	Payload       json.RawMessage
	Blob          []byte
	Metadata      json.RawMessage
	Status        Status
	RetryCount    int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsDue reports whether the item is queued and its backoff has elapsed.
func (i *Item) IsDue(now time.Time) bool {
	if i == nil || i.Status != StatusQueued {
		return false
	}
	return !i.NextAttemptAt.After(now)
}

// Draft is the caller-supplied content of a new queue item.
type Draft struct {
	Payload  json.RawMessage
	Blob     []byte
	Metadata json.RawMessage
}

func (d Draft) validate(kind Kind) error {
	switch kind {
	case KindForm:
		if len(d.Payload) == 0 {
			return fmt.Errorf("form payload is required")
		}
		if !json.Valid(d.Payload) {
			return fmt.Errorf("form payload must be valid JSON")
		}
	case KindImage, KindSignature:
		if len(d.Blob) == 0 {
			return fmt.Errorf("%s blob is required", kind)
		}
	default:
		return fmt.Errorf("unknown queue kind %q", kind)
	}
	if len(d.Metadata) > 0 && !json.Valid(d.Metadata) {
		return fmt.Errorf("%s metadata must be valid JSON", kind)
	}
	return nil
}

// CacheCollection identifies a read-through cache.
type CacheCollection string

const (
	CollectionTasks         CacheCollection = "tasks"
	CollectionNotifications CacheCollection = "notifications"
)

// CacheCollections lists every read-through cache.
var CacheCollections = []CacheCollection{CollectionTasks, CollectionNotifications}

// ParseCacheCollection validates a cache collection name.
func ParseCacheCollection(value string) (CacheCollection, error) {
	switch CacheCollection(strings.ToLower(strings.TrimSpace(value))) {
	case CollectionTasks:
		return CollectionTasks, nil
	case CollectionNotifications:
		return CollectionNotifications, nil
	default:
		return "", fmt.Errorf("unknown cache collection %q", value)
	}
}

// Ribbon records that a server change overwrote a local edit. It stays on
// the cached entity until dismissed.
type Ribbon struct {
	UpdatedBy string    `json:"updatedBy"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entry is a cached copy of a remote entity keyed by its remote id.
type Entry struct {
	ID              string
	Data            map[string]any
	FetchedAt       time.Time
	LocalModifiedAt *time.Time
	Ribbon          *Ribbon
}

// HasPendingEdit reports whether the entry carries an unsynced local change.
func (e *Entry) HasPendingEdit() bool {
	return e != nil && e.LocalModifiedAt != nil
}
