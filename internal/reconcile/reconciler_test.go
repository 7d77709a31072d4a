package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/conflict"
	"fieldsync/internal/reconcile"
	"fieldsync/internal/services"
	"fieldsync/internal/store"
	"fieldsync/internal/testsupport"
)

var editedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClient struct {
	mu       sync.Mutex
	entities map[string]map[string]any
	pushErr  error
	pushed   []string
}

func (f *fakeClient) Fetch(_ context.Context, _ store.CacheCollection, id string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entity, ok := f.entities[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return entity, nil
}

func (f *fakeClient) List(_ context.Context, _ store.CacheCollection) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.entities))
	for _, id := range []string{"T-1", "T-2", "T-3", "T-4"} {
		if entity, ok := f.entities[id]; ok {
			out = append(out, entity)
		}
	}
	return out, nil
}

func (f *fakeClient) Push(_ context.Context, _ store.CacheCollection, id string, entity map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, id)
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	accepted := map[string]any{"updatedAt": "2026-03-01T09:00:05Z", "updatedBy": "tech-7"}
	for k, v := range entity {
		accepted[k] = v
	}
	accepted["id"] = id
	return accepted, nil
}

func setup(t *testing.T, opts ...reconcile.Option) (*reconcile.Reconciler, *store.Cache) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	return reconcile.New(cfg, st, nil, opts...), st.Cache(store.CollectionTasks)
}

func markEdit(t *testing.T, cache *store.Cache, id string, at time.Time) {
	t.Helper()
	require.NoError(t, cache.MarkLocalEdit(context.Background(), id, map[string]any{"id": id, "status": "on-site"}, at))
}

func TestApplyWithoutPendingEditStoresServerCopy(t *testing.T) {
	r, cache := setup(t)
	ctx := context.Background()

	res, err := r.Apply(ctx, store.CollectionTasks, map[string]any{"id": "T-1", "status": "assigned", "updatedAt": "2026-03-01T08:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, conflict.SourceServer, res.Source)
	assert.False(t, res.Conflict)

	entry, err := cache.Get(ctx, "T-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "assigned", entry.Data["status"])
	assert.False(t, entry.HasPendingEdit())
	assert.Nil(t, entry.Ribbon)
}

func TestApplyKeepsNewerCachedServerCopy(t *testing.T) {
	r, cache := setup(t)
	ctx := context.Background()

	_, err := r.Apply(ctx, store.CollectionTasks, map[string]any{"id": "T-1", "title": "newer", "updatedAt": "2026-03-01T12:00:00Z"})
	require.NoError(t, err)

	res, err := r.Apply(ctx, store.CollectionTasks, map[string]any{"id": "T-1", "title": "older", "updatedAt": "2026-03-01T10:00:00Z"})
	require.NoError(t, err)
	assert.False(t, res.Conflict)
	assert.Equal(t, "newer", res.Merged["title"])

	entry, err := cache.Get(ctx, "T-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "newer", entry.Data["title"])

	_, err = r.Apply(ctx, store.CollectionTasks, map[string]any{"id": "T-1", "title": "latest", "updatedAt": int64(1772373600000)})
	require.NoError(t, err)
	entry, err = cache.Get(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, "latest", entry.Data["title"])
}

func TestEditPushIsNotRevertedByStaleRefresh(t *testing.T) {
	r, cache := setup(t)
	ctx := context.Background()
	client := &fakeClient{entities: map[string]map[string]any{
		"T-1": {"id": "T-1", "status": "assigned", "updatedAt": "2026-03-01T08:00:00Z"},
	}}

	_, err := r.Edit(ctx, client, store.CollectionTasks, "T-1", map[string]any{"status": "on-site"})
	require.NoError(t, err)

	_, err = r.Refresh(ctx, client, store.CollectionTasks)
	require.NoError(t, err)

	entry, err := cache.Get(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, "on-site", entry.Data["status"])
}

func TestApplyServerNewerOverwritesEditAndLeavesRibbon(t *testing.T) {
	var hooked []string
	r, cache := setup(t, reconcile.WithConflictHook(func(_ context.Context, _ store.CacheCollection, id string, res conflict.Resolution) {
		hooked = append(hooked, id)
	}))
	ctx := context.Background()
	markEdit(t, cache, "T-1", editedAt)

	res, err := r.Apply(ctx, store.CollectionTasks, map[string]any{
		"id":        "T-1",
		"status":    "cancelled",
		"updatedAt": "2026-03-01T09:05:00Z",
		"updatedBy": "dispatch-2",
	})
	require.NoError(t, err)
	assert.Equal(t, conflict.SourceServer, res.Source)
	assert.True(t, res.Conflict)
	require.NotNil(t, res.Ribbon)
	assert.Equal(t, []string{"T-1"}, hooked)

	entry, err := cache.Get(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", entry.Data["status"])
	assert.False(t, entry.HasPendingEdit())
	require.NotNil(t, entry.Ribbon)
	assert.Equal(t, "dispatch-2", entry.Ribbon.UpdatedBy)
	assert.True(t, entry.Ribbon.UpdatedAt.Equal(time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)))

	ribbons, err := cache.WithRibbons(ctx)
	require.NoError(t, err)
	assert.Len(t, ribbons, 1)
}

func TestApplyLocalNewerKeepsPendingEdit(t *testing.T) {
	r, cache := setup(t)
	ctx := context.Background()
	markEdit(t, cache, "T-2", editedAt)

	res, err := r.Apply(ctx, store.CollectionTasks, map[string]any{
		"id":        "T-2",
		"status":    "assigned",
		"updatedAt": "2026-03-01T08:55:00Z",
		"updatedBy": "dispatch-2",
	})
	require.NoError(t, err)
	assert.Equal(t, conflict.SourceLocal, res.Source)
	assert.True(t, res.Conflict)
	assert.Nil(t, res.Ribbon)

	entry, err := cache.Get(ctx, "T-2")
	require.NoError(t, err)
	assert.Equal(t, "on-site", entry.Data["status"])
	require.True(t, entry.HasPendingEdit())
	assert.True(t, entry.LocalModifiedAt.Equal(editedAt))
	assert.Nil(t, entry.Ribbon)
}

func TestApplyTieTakesServerQuietly(t *testing.T) {
	r, cache := setup(t)
	ctx := context.Background()
	markEdit(t, cache, "T-3", editedAt)

	res, err := r.Apply(ctx, store.CollectionTasks, map[string]any{
		"id":        "T-3",
		"status":    "done",
		"updatedAt": editedAt.UnixMilli(),
	})
	require.NoError(t, err)
	assert.Equal(t, conflict.SourceServer, res.Source)
	assert.False(t, res.Conflict)

	entry, err := cache.Get(ctx, "T-3")
	require.NoError(t, err)
	assert.Equal(t, "done", entry.Data["status"])
	assert.False(t, entry.HasPendingEdit())
	assert.Nil(t, entry.Ribbon)
}

func TestApplyRejectsEntityWithoutID(t *testing.T) {
	r, _ := setup(t)
	_, err := r.Apply(context.Background(), store.CollectionTasks, map[string]any{"status": "assigned"})
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestApplyMalformedServerTimestamp(t *testing.T) {
	r, cache := setup(t)
	markEdit(t, cache, "T-4", editedAt)
	_, err := r.Apply(context.Background(), store.CollectionTasks, map[string]any{"id": "T-4", "updatedAt": "yesterday"})
	require.ErrorIs(t, err, services.ErrValidation)
	require.ErrorIs(t, err, conflict.ErrInvalidTimestamp)
}

func TestRefreshSummarizesOutcomes(t *testing.T) {
	r, cache := setup(t)
	ctx := context.Background()
	markEdit(t, cache, "T-1", editedAt)
	markEdit(t, cache, "T-2", editedAt)

	client := &fakeClient{entities: map[string]map[string]any{
		"T-1": {"id": "T-1", "updatedAt": "2026-03-01T10:00:00Z", "updatedBy": "dispatch-2"},
		"T-2": {"id": "T-2", "updatedAt": "2026-03-01T08:00:00Z"},
		"T-3": {"id": "T-3", "updatedAt": "2026-03-01T08:00:00Z"},
		"T-4": {"id": "T-4", "updatedAt": "not a time"},
	}}
	markEdit(t, cache, "T-4", editedAt)

	summary, err := r.Refresh(ctx, client, store.CollectionTasks)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Summary{Fetched: 3, Overwritten: 1, KeptLocal: 1, Skipped: 1}, summary)

	all, err := cache.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestEditPushedClearsPendingEdit(t *testing.T) {
	r, cache := setup(t)
	ctx := context.Background()
	client := &fakeClient{entities: map[string]map[string]any{}}

	res, err := r.Edit(ctx, client, store.CollectionTasks, "T-1", map[string]any{"status": "on-site"})
	require.NoError(t, err)
	assert.Equal(t, conflict.SourceServer, res.Source)
	assert.Equal(t, []string{"T-1"}, client.pushed)

	entry, err := cache.Get(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, "on-site", entry.Data["status"])
	assert.Equal(t, "tech-7", entry.Data["updatedBy"])
	assert.False(t, entry.HasPendingEdit())
}

func TestEditRejectedResolvesAgainstServer(t *testing.T) {
	r, cache := setup(t)
	ctx := context.Background()
	client := &fakeClient{
		entities: map[string]map[string]any{
			"T-1": {"id": "T-1", "status": "cancelled", "updatedAt": "2099-01-01T00:00:00Z", "updatedBy": "dispatch-2"},
		},
		pushErr: services.Wrap(services.ErrRejected, "remote", "push", "409", nil),
	}

	res, err := r.Edit(ctx, client, store.CollectionTasks, "T-1", map[string]any{"status": "on-site"})
	require.NoError(t, err)
	assert.Equal(t, conflict.SourceServer, res.Source)
	assert.True(t, res.Conflict)

	entry, err := cache.Get(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", entry.Data["status"])
	require.NotNil(t, entry.Ribbon)
	assert.Equal(t, "dispatch-2", entry.Ribbon.UpdatedBy)
}

func TestEditOfflineKeepsPendingEdit(t *testing.T) {
	r, cache := setup(t)
	ctx := context.Background()
	client := &fakeClient{pushErr: services.Wrap(services.ErrTransient, "remote", "push", "offline", errors.New("dial tcp: refused"))}

	res, err := r.Edit(ctx, client, store.CollectionTasks, "T-1", map[string]any{"id": "T-1", "status": "on-site"})
	require.NoError(t, err)
	assert.Equal(t, conflict.SourceLocal, res.Source)

	entry, err := cache.Get(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, "on-site", entry.Data["status"])
	assert.True(t, entry.HasPendingEdit())
}

func TestApplyOnDegradedStore(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStoreDisabled())
	r := reconcile.New(cfg, store.Degraded(nil), nil)

	res, err := r.Apply(context.Background(), store.CollectionTasks, map[string]any{"id": "T-1"})
	require.NoError(t, err)
	assert.Equal(t, conflict.SourceServer, res.Source)
}

func TestEntityID(t *testing.T) {
	assert.Equal(t, "T-1", reconcile.EntityID(map[string]any{"id": " T-1 "}))
	assert.Equal(t, "42", reconcile.EntityID(map[string]any{"id": 42}))
	assert.Empty(t, reconcile.EntityID(map[string]any{}))
}
