package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldsync/internal/logging"
)

// Listener receives broadcast messages. Listeners run synchronously on the
// publishing goroutine and must not block.
type Listener func(Message)

// Channel is a named broadcast medium.
type Channel interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(listener Listener) (unsubscribe func())
	Close() error
}

// Hub delivers every published message to all current subscribers of the
// same process.
type Hub struct {
	logger *slog.Logger
	origin string

	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
	closed    bool
}

// NewHub creates an in-process channel.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:    logging.NewComponentLogger(logger, "broadcast"),
		origin:    uuid.NewString(),
		listeners: make(map[uint64]Listener),
	}
}

// Origin identifies this hub in messages it stamps.
func (h *Hub) Origin() string {
	return h.origin
}

// Publish stamps msg and delivers it. Messages of unknown type are dropped.
func (h *Hub) Publish(_ context.Context, msg Message) error {
	if !msg.Type.Known() {
		h.logger.Debug("dropping message of unknown type", logging.String("type", string(msg.Type)))
		return nil
	}
	h.deliver(h.stamp(msg))
	return nil
}

func (h *Hub) stamp(msg Message) Message {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Origin == "" {
		msg.Origin = h.origin
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	return msg
}

// Subscribe registers listener until the returned function is called.
// Calling the function more than once is harmless.
func (h *Hub) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	id := h.nextID
	h.nextID++
	h.listeners[id] = listener
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the current listener count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Close drops every listener. Later publishes are no-ops.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	h.listeners = make(map[uint64]Listener)
	h.mu.Unlock()
	return nil
}

func (h *Hub) deliver(msg Message) {
	if !msg.Type.Known() {
		return
	}
	h.mu.RLock()
	listeners := make([]Listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		listeners = append(listeners, l)
	}
	h.mu.RUnlock()

	for _, listener := range listeners {
		h.invoke(listener, msg)
	}
}

func (h *Hub) invoke(listener Listener, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("broadcast listener panicked",
				logging.Any("panic", r),
				logging.String(logging.FieldEventType, "listener_panic"),
				logging.String(logging.FieldErrorHint, "listener bug; other listeners still ran"),
			)
		}
	}()
	listener(msg)
}
