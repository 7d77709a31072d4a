package daemonrun

import (
	"context"
	"errors"
	"testing"
	"time"

	"fieldsync/internal/broadcast"
	"fieldsync/internal/conflict"
	"fieldsync/internal/delivery"
	"fieldsync/internal/logging"
	"fieldsync/internal/notifications"
	"fieldsync/internal/store"
	"fieldsync/internal/testsupport"
)

type recordingNotifier struct {
	events   []notifications.Event
	payloads []notifications.Payload
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.events = append(r.events, event)
	r.payloads = append(r.payloads, payload)
	return nil
}

func TestItemFailedHookOnlyNotifiesPermanentFailures(t *testing.T) {
	notifier := &recordingNotifier{}
	hook := itemFailedHook(notifier, logging.NewNop())
	item := &store.Item{ID: 7, Kind: store.KindForm, RetryCount: 6}

	hook(context.Background(), delivery.Outcome{Item: item})
	hook(context.Background(), delivery.Outcome{Item: item, Err: errors.New("timeout")})
	if len(notifier.events) != 0 {
		t.Fatalf("expected no notifications for retryable outcomes, got %v", notifier.events)
	}

	hook(context.Background(), delivery.Outcome{Item: item, Err: errors.New("rejected"), Permanent: true})
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventItemFailed {
		t.Fatalf("expected one item_failed notification, got %v", notifier.events)
	}
	payload := notifier.payloads[0]
	if payload["store"] != "forms" || payload["id"] != int64(7) || payload["error"] != "rejected" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestConflictHookRequiresRibbon(t *testing.T) {
	notifier := &recordingNotifier{}
	hook := conflictHook(notifier, logging.NewNop())

	hook(context.Background(), store.CollectionTasks, "T-1", conflict.Resolution{Source: conflict.SourceLocal, Conflict: true})
	if len(notifier.events) != 0 {
		t.Fatalf("expected local wins to stay quiet, got %v", notifier.events)
	}

	hook(context.Background(), store.CollectionTasks, "T-2", conflict.Resolution{
		Source:   conflict.SourceServer,
		Conflict: true,
		Ribbon:   &conflict.Ribbon{UpdatedBy: "dispatch", UpdatedAt: time.Now()},
	})
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventConflict {
		t.Fatalf("expected one conflict notification, got %v", notifier.events)
	}
	if notifier.payloads[0]["updatedBy"] != "dispatch" || notifier.payloads[0]["id"] != "T-2" {
		t.Fatalf("unexpected payload: %+v", notifier.payloads[0])
	}
}

func TestOpenChannelFallsBackToHub(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	channel := openChannel(cfg, logging.NewNop())
	t.Cleanup(func() { _ = channel.Close() })
	if _, ok := channel.(*broadcast.DirChannel); !ok {
		t.Fatalf("expected directory channel, got %T", channel)
	}

	cfg.Paths.BroadcastDir = ""
	hub := openChannel(cfg, logging.NewNop())
	t.Cleanup(func() { _ = hub.Close() })
	if _, ok := hub.(*broadcast.Hub); !ok {
		t.Fatalf("expected in-process hub, got %T", hub)
	}
}

func TestOpenRemoteWithoutBaseURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Remote.BaseURL = ""
	client, err := openRemote(cfg, logging.NewNop())
	if err != nil || client != nil {
		t.Fatalf("expected no client and no error, got %v, %v", client, err)
	}
}
