package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"fieldsync/internal/api"
	"fieldsync/internal/store"
	"fieldsync/internal/testsupport"
)

func TestQueueListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestEnqueueAndListJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"enqueue", "form", "--payload", `{"title":"site survey"}`}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	requireContains(t, out, "Queued forms #")

	out, _, err = runCLI(t, []string{"queue", "list", "--kind", "form", "--format", "json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	var resp api.QueueListResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Store != "forms" || resp.Items[0].Status != "queued" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
	if !strings.Contains(string(resp.Items[0].Payload), "site survey") {
		t.Fatalf("payload not carried through: %s", resp.Items[0].Payload)
	}
}

func TestEnqueueRequiresContent(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"enqueue", "form"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "payload or blob is required") {
		t.Fatalf("expected missing content error, got %v", err)
	}
	_, _, err = runCLI(t, []string{"enqueue", "form", "--payload", "{not json"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "valid JSON") {
		t.Fatalf("expected invalid JSON error, got %v", err)
	}
}

func TestQueueRetryAndDiscard(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()
	item := testsupport.EnqueueForm(t, env.store, map[string]any{"title": "broken"})
	q := env.store.Queue(store.KindForm)
	item.Status = store.StatusFailed
	item.RetryCount = 6
	if err := q.Update(ctx, item); err != nil {
		t.Fatalf("update: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Forms")

	idArg := strconv.FormatInt(item.ID, 10)
	out, _, err = runCLI(t, []string{"queue", "retry", "form", idArg}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Item "+idArg+" retried")

	got, err := q.Get(ctx, item.ID)
	if err != nil || got == nil {
		t.Fatalf("get item: %v", err)
	}
	if got.Status != store.StatusQueued || got.RetryCount != 0 {
		t.Fatalf("expected item requeued with reset retries, got %+v", got)
	}

	out, _, err = runCLI(t, []string{"queue", "discard", "form", idArg}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue discard: %v", err)
	}
	requireContains(t, out, "Item "+idArg+" discarded")

	if _, _, err := runCLI(t, []string{"queue", "retry", "form", "abc"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected invalid id to be rejected")
	}
}

func TestSyncAndRibbons(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"sync"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	requireContains(t, out, "Manual sync requested")

	cache := env.store.Cache(store.CollectionTasks)
	entry := &store.Entry{
		ID:     "T-7",
		Data:   map[string]any{"id": "T-7", "title": "Replace valve"},
		Ribbon: &store.Ribbon{UpdatedBy: "dispatch", UpdatedAt: time.Now()},
	}
	if err := cache.Put(context.Background(), entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	out, _, err = runCLI(t, []string{"ribbons", "--format", "yaml"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ribbons: %v", err)
	}
	var listed api.RibbonListResponse
	if err := yaml.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode yaml %q: %v", out, err)
	}
	if len(listed.Ribbons) != 1 || listed.Ribbons[0].ID != "T-7" {
		t.Fatalf("unexpected ribbons: %+v", listed)
	}

	out, _, err = runCLI(t, []string{"ribbons", "dismiss", "tasks", "T-7"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	requireContains(t, out, "Dismissed ribbon on tasks T-7")

	out, _, err = runCLI(t, []string{"ribbons", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("ribbons list: %v", err)
	}
	requireContains(t, out, "No ribbons")
}

func TestRefreshWithoutRemote(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"refresh", "tasks"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected refresh to fail without a remote")
	}
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "stopped")
	requireContains(t, out, "not configured")
}

func TestQueueFallsBackToStoreWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	st := testsupport.MustOpenStore(t, cfg)
	testsupport.EnqueueForm(t, st, map[string]any{"title": "offline"})

	out, _, err := runCLI(t, []string{"queue", "list"}, cfg.Paths.SocketPath, configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "forms")

	out, _, err = runCLI(t, []string{"status"}, cfg.Paths.SocketPath, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "not running")

	if _, _, err := runCLI(t, []string{"sync"}, cfg.Paths.SocketPath, configPath); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected missing socket error, got %v", err)
	}
}

func TestInvalidFormatRejected(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"queue", "list", "--format", "xml"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"stop"}, cfg.Paths.SocketPath, configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
