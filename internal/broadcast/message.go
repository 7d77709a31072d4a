package broadcast

import (
	"encoding/json"
	"time"
)

// Type identifies a broadcast message.
type Type string

const (
	TypeSyncSuccess Type = "sync:success"
	TypeSyncFailure Type = "sync:failure"
	TypeManualSync  Type = "manual-sync"
)

// Known reports whether consumers act on messages of this type.
func (t Type) Known() bool {
	switch t {
	case TypeSyncSuccess, TypeSyncFailure, TypeManualSync:
		return true
	default:
		return false
	}
}

// Message is the wire form shared by every context. Store and ID name the
// queue collection and item a sync result refers to.
type Message struct {
	Type  Type   `json:"type"`
	Store string `json:"store,omitempty"`
	ID    int64  `json:"id,omitempty"`
	Error string `json:"error,omitempty"`

	MessageID string    `json:"messageId,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	SentAt    time.Time `json:"sentAt,omitzero"`
}

// SyncSuccess reports a delivered item.
func SyncSuccess(store string, id int64) Message {
	return Message{Type: TypeSyncSuccess, Store: store, ID: id}
}

// SyncFailure reports a failed delivery attempt.
func SyncFailure(store string, id int64, err error) Message {
	msg := Message{Type: TypeSyncFailure, Store: store, ID: id}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// ManualSync announces a user-requested sync.
func ManualSync() Message {
	return Message{Type: TypeManualSync}
}

// Decode parses a wire message. ok is false for malformed input and for
// types no consumer understands.
func Decode(data []byte) (Message, bool) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, false
	}
	if !msg.Type.Known() {
		return Message{}, false
	}
	return msg, true
}
