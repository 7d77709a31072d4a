package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fieldsync/internal/config"
)

const userAgent = "fieldsync/0.1.0"

// Event names a notification type.
type Event string

const (
	EventItemFailed    Event = "item_failed"
	EventConflict      Event = "conflict"
	EventStoreDegraded Event = "store_degraded"
	EventTest          Event = "test"
)

// Payload carries event details. Keys depend on the event.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventItemFailed:    cfg.Notifications.ItemFailed,
			EventConflict:      cfg.Notifications.Conflicts,
			EventStoreDegraded: true,
			EventTest:          true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventItemFailed:
		body := fmt.Sprintf("%s #%s gave up after %s attempts", text(payload, "store"), text(payload, "id"), text(payload, "attempts"))
		if reason := text(payload, "error"); reason != "" {
			body += "\nLast error: " + reason
		}
		return message{
			title:    "Fieldsync - Delivery Failed",
			body:     body,
			tags:     []string{"fieldsync", "queue", "failed"},
			priority: "high",
		}, true
	case EventConflict:
		body := fmt.Sprintf("%s %s was changed on the server", text(payload, "collection"), text(payload, "id"))
		if by := text(payload, "updatedBy"); by != "" {
			body += " by " + by
		}
		body += "; the local edit was replaced"
		return message{
			title: "Fieldsync - Edit Overwritten",
			body:  body,
			tags:  []string{"fieldsync", "conflict"},
		}, true
	case EventStoreDegraded:
		return message{
			title:    "Fieldsync - Storage Unavailable",
			body:     "Running without durable storage: " + text(payload, "error"),
			tags:     []string{"fieldsync", "store", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Fieldsync - Test",
			body:     "Notification system test",
			tags:     []string{"fieldsync", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func text(payload Payload, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
