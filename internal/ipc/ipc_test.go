package ipc_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fieldsync/internal/api"
	"fieldsync/internal/broadcast"
	"fieldsync/internal/daemon"
	"fieldsync/internal/delivery"
	"fieldsync/internal/ipc"
	"fieldsync/internal/logging"
	"fieldsync/internal/store"
	"fieldsync/internal/testsupport"
	"fieldsync/internal/worker"
	"fieldsync/internal/workflow"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	var sends atomic.Int32
	sender := delivery.SendFunc(func(context.Context, *store.Item) error {
		sends.Add(1)
		return nil
	})
	hub := broadcast.NewHub(logger)
	w := worker.New(cfg, st, sender, hub, logger)
	mgr := workflow.NewManager(cfg, st, hub, logger, workflow.WithWorker(w))
	d, err := daemon.New(cfg, daemon.Deps{Store: st, Channel: hub, Manager: mgr, Worker: w}, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(cfg.Paths.SocketPath)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running || !status.StoreAvailable {
		t.Fatalf("unexpected status before start: %+v", status)
	}

	enqueued, err := client.Enqueue(ipc.EnqueueRequest{
		Kind:           "form",
		EnqueueRequest: api.EnqueueRequest{Payload: json.RawMessage(`{"title":"inspection"}`)},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if !enqueued.Durable || enqueued.Item == nil || enqueued.Item.Status != "queued" {
		t.Fatalf("unexpected enqueue response: %+v", enqueued)
	}

	list, err := client.QueueList([]string{"forms"}, []string{"queued"})
	if err != nil {
		t.Fatalf("QueueList: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != enqueued.Item.ID {
		t.Fatalf("unexpected queue list: %+v", list.Items)
	}

	if _, err := client.QueueList(nil, []string{"bogus"}); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}

	retried, err := client.QueueRetry("forms", []int64{enqueued.Item.ID})
	if err != nil {
		t.Fatalf("QueueRetry: %v", err)
	}
	if retried.UpdatedCount != 0 || len(retried.Items) != 1 || retried.Items[0].Outcome != api.ItemNotFailed {
		t.Fatalf("expected queued item to be left alone, got %+v", retried)
	}

	ribbons, err := client.Ribbons()
	if err != nil {
		t.Fatalf("Ribbons: %v", err)
	}
	if len(ribbons.Ribbons) != 0 {
		t.Fatalf("expected no ribbons, got %+v", ribbons.Ribbons)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon start: %v", err)
	}
	synced, err := client.SyncNow()
	if err != nil {
		t.Fatalf("SyncNow: %v", err)
	}
	if !synced.Triggered {
		t.Fatalf("expected sync to be triggered, got %+v", synced)
	}

	deadline := time.Now().Add(5 * time.Second)
	for sends.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sends.Load() == 0 {
		t.Fatal("expected queued form to be delivered")
	}
	for time.Now().Before(deadline) {
		list, err = client.QueueList(nil, nil)
		if err != nil {
			t.Fatalf("QueueList: %v", err)
		}
		if len(list.Items) == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(list.Items) != 0 {
		t.Fatalf("expected delivered item to be removed, got %+v", list.Items)
	}

	cleared, err := client.QueueClearFailed(nil)
	if err != nil {
		t.Fatalf("QueueClearFailed: %v", err)
	}
	if cleared.Removed != 0 {
		t.Fatalf("expected nothing to clear, got %d", cleared.Removed)
	}
}
