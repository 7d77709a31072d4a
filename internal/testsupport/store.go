package testsupport

import (
	"context"
	"encoding/json"
	"testing"

	"fieldsync/internal/config"
	"fieldsync/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// EnqueueForm queues a form whose payload is the JSON encoding of body.
func EnqueueForm(t testing.TB, st *store.Store, body any) *store.Item {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal form payload: %v", err)
	}
	item, err := st.Queue(store.KindForm).Enqueue(context.Background(), store.Draft{Payload: payload})
	if err != nil {
		t.Fatalf("enqueue form: %v", err)
	}
	if item == nil {
		t.Fatal("enqueue form returned nil item")
	}
	return item
}
