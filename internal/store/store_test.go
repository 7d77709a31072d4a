package store_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fieldsync/internal/services"
	"fieldsync/internal/store"
	"fieldsync/internal/testsupport"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if !st.Available() {
		t.Fatal("expected store to be available")
	}
	if st.Path() != cfg.DatabasePath() {
		t.Fatalf("unexpected path %q", st.Path())
	}
	versions, err := st.SchemaVersions(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersions failed: %v", err)
	}
	if len(versions) != 2 || versions[0] != "0001_collections" || versions[1] != "0002_failure_detail_and_ribbons" {
		t.Fatalf("unexpected versions: %v", versions)
	}
}

func TestReopenKeepsExistingData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	item := testsupport.EnqueueForm(t, st, map[string]string{"status": "en-route"})
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	got, err := reopened.Queue(store.KindForm).Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || string(got.Payload) != `{"status":"en-route"}` {
		t.Fatalf("expected item to survive reopen, got %#v", got)
	}
}

func TestOpenUpgradesOlderSchemaInPlace(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	initial, err := os.ReadFile(filepath.Join("migrations", "0001_collections.sql"))
	if err != nil {
		t.Fatalf("read initial schema: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open raw database: %v", err)
	}
	now := time.Now().UnixMilli()
	for _, stmt := range []string{
		string(initial),
		"CREATE TABLE schema_migrations (version TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			t.Fatalf("seed schema: %v", err)
		}
	}
	seeds := []struct {
		query string
		args  []any
	}{
		{"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", []any{"0001_collections", now}},
		{"INSERT INTO forms (payload, status, retry_count, next_attempt_at, created_at, updated_at) VALUES (?, 'queued', 0, ?, ?, ?)", []any{`{"status":"en-route"}`, now, now, now}},
		{"INSERT INTO tasks (id, data, fetched_at) VALUES (?, ?, ?)", []any{"T-1", `{"id":"T-1","title":"Inspect pump"}`, now}},
	}
	for _, seed := range seeds {
		if _, err := db.Exec(seed.query, seed.args...); err != nil {
			db.Close()
			t.Fatalf("seed rows: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close raw database: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	versions, err := st.SchemaVersions(ctx)
	if err != nil || len(versions) != 2 {
		t.Fatalf("expected both migrations recorded, got %v (%v)", versions, err)
	}

	q := st.Queue(store.KindForm)
	items, err := q.GetAllQueued(ctx)
	if err != nil {
		t.Fatalf("GetAllQueued failed: %v", err)
	}
	if len(items) != 1 || string(items[0].Payload) != `{"status":"en-route"}` {
		t.Fatalf("expected seeded form to survive, got %#v", items)
	}
	item := items[0]
	item.Status = store.StatusFailed
	item.LastError = "remote rejected"
	if err := q.Update(ctx, item); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err := q.Get(ctx, item.ID)
	if err != nil || got == nil || got.Status != store.StatusFailed || got.LastError != "remote rejected" {
		t.Fatalf("expected failed item with last error, got %#v (%v)", got, err)
	}

	cache := st.Cache(store.CollectionTasks)
	task, err := cache.Get(ctx, "T-1")
	if err != nil || task == nil || task.Data["title"] != "Inspect pump" {
		t.Fatalf("expected seeded task to survive, got %#v (%v)", task, err)
	}
	task.Ribbon = &store.Ribbon{UpdatedBy: "dispatch", UpdatedAt: time.Now()}
	if err := cache.Put(ctx, task); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	dismissed, err := cache.DismissRibbon(ctx, "T-1")
	if err != nil || !dismissed {
		t.Fatalf("expected ribbon dismissal on upgraded table, got %v (%v)", dismissed, err)
	}
}

func TestOpenDisabledStoreFails(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStoreDisabled())
	_, err := store.Open(cfg)
	if !errors.Is(err, services.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
}

func TestOpenOrDegradeFallsBack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	blocker := filepath.Join(testsupport.BaseDir(cfg), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	cfg.Paths.DataDir = filepath.Join(blocker, "data")

	st := store.OpenOrDegrade(cfg, nil)
	if st.Available() {
		t.Fatal("expected degraded store")
	}
	if !errors.Is(st.Reason(), services.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable reason, got %v", st.Reason())
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close on degraded store failed: %v", err)
	}
}

func TestDegradedStoreNeverErrors(t *testing.T) {
	st := store.OpenOrDegrade(testsupport.NewConfig(t, testsupport.WithStoreDisabled()), nil)
	ctx := context.Background()

	for _, q := range st.Queues() {
		item, err := q.Enqueue(ctx, store.Draft{Payload: []byte(`{}`), Blob: []byte{1}})
		if err != nil || item != nil {
			t.Fatalf("%s: Enqueue = %v, %v", q.Kind(), item, err)
		}
		items, err := q.GetAllQueued(ctx)
		if err != nil || items != nil {
			t.Fatalf("%s: GetAllQueued = %v, %v", q.Kind(), items, err)
		}
		if err := q.Update(ctx, &store.Item{ID: 1}); err != nil {
			t.Fatalf("%s: Update = %v", q.Kind(), err)
		}
		if err := q.Remove(ctx, 1); err != nil {
			t.Fatalf("%s: Remove = %v", q.Kind(), err)
		}
		if n, err := q.RetryFailed(ctx); err != nil || n != 0 {
			t.Fatalf("%s: RetryFailed = %d, %v", q.Kind(), n, err)
		}
	}
	for _, collection := range store.CacheCollections {
		cache := st.Cache(collection)
		if err := cache.Put(ctx, &store.Entry{ID: "t-1", Data: map[string]any{"a": 1}}); err != nil {
			t.Fatalf("%s: Put = %v", collection, err)
		}
		entry, err := cache.Get(ctx, "t-1")
		if err != nil || entry != nil {
			t.Fatalf("%s: Get = %v, %v", collection, entry, err)
		}
		entries, err := cache.GetAll(ctx)
		if err != nil || entries != nil {
			t.Fatalf("%s: GetAll = %v, %v", collection, entries, err)
		}
		if err := cache.Delete(ctx, "t-1"); err != nil {
			t.Fatalf("%s: Delete = %v", collection, err)
		}
	}
}
