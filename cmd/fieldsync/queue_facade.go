package main

import (
	"context"
	"fmt"

	"fieldsync/internal/api"
	"fieldsync/internal/ipc"
	"fieldsync/internal/store"
)

type queueAPI interface {
	Stats(ctx context.Context) (map[string]map[string]int, error)
	List(ctx context.Context, kinds, statuses []string) ([]api.QueueItem, error)
	Retry(ctx context.Context, kind string, ids []int64) (api.ItemsResult, error)
	Discard(ctx context.Context, kind string, ids []int64, force bool) (api.ItemsResult, error)
	ClearFailed(ctx context.Context, kinds []string) (int64, error)
}

// --- IPC adapter ---

type queueIPCAdapter struct {
	client *ipc.Client
}

func (a *queueIPCAdapter) Stats(_ context.Context) (map[string]map[string]int, error) {
	resp, err := a.client.Status()
	if err != nil {
		return nil, err
	}
	return resp.Workflow.QueueStats, nil
}

func (a *queueIPCAdapter) List(_ context.Context, kinds, statuses []string) ([]api.QueueItem, error) {
	resp, err := a.client.QueueList(kinds, statuses)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *queueIPCAdapter) Retry(_ context.Context, kind string, ids []int64) (api.ItemsResult, error) {
	resp, err := a.client.QueueRetry(kind, ids)
	if err != nil {
		return api.ItemsResult{}, err
	}
	return *resp, nil
}

func (a *queueIPCAdapter) Discard(_ context.Context, kind string, ids []int64, force bool) (api.ItemsResult, error) {
	resp, err := a.client.QueueDiscard(kind, ids, force)
	if err != nil {
		return api.ItemsResult{}, err
	}
	return *resp, nil
}

func (a *queueIPCAdapter) ClearFailed(_ context.Context, kinds []string) (int64, error) {
	resp, err := a.client.QueueClearFailed(kinds)
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

// --- Store adapter ---

// queueStoreAdapter serves queue commands straight from the local store while
// the daemon is down. Nothing is delivered until the daemon starts again.
type queueStoreAdapter struct {
	store   *store.Store
	service *api.QueueService
}

func newQueueStoreAdapter(st *store.Store) *queueStoreAdapter {
	return &queueStoreAdapter{store: st, service: api.NewQueueService(st)}
}

func (a *queueStoreAdapter) Stats(ctx context.Context) (map[string]map[string]int, error) {
	out := make(map[string]map[string]int, len(store.Kinds))
	for _, q := range a.store.Queues() {
		stats, err := q.Stats(ctx)
		if err != nil {
			return nil, err
		}
		out[q.Collection()] = api.MergeQueueStats(stats)
	}
	return out, nil
}

func (a *queueStoreAdapter) List(ctx context.Context, kinds, statuses []string) ([]api.QueueItem, error) {
	parsedKinds, err := parseKinds(kinds)
	if err != nil {
		return nil, err
	}
	parsedStatuses := make([]store.Status, 0, len(statuses))
	for _, value := range statuses {
		status, ok := store.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		parsedStatuses = append(parsedStatuses, status)
	}
	return a.service.List(ctx, parsedKinds, parsedStatuses...)
}

func (a *queueStoreAdapter) Retry(ctx context.Context, kind string, ids []int64) (api.ItemsResult, error) {
	parsed, err := store.ParseKind(kind)
	if err != nil {
		return api.ItemsResult{}, err
	}
	if len(ids) == 0 {
		updated, err := a.service.Retry(ctx, parsed, nil)
		return api.ItemsResult{UpdatedCount: updated}, err
	}
	return api.RetryFailedItems(ctx, a.service, parsed, ids)
}

func (a *queueStoreAdapter) Discard(ctx context.Context, kind string, ids []int64, force bool) (api.ItemsResult, error) {
	parsed, err := store.ParseKind(kind)
	if err != nil {
		return api.ItemsResult{}, err
	}
	return api.DiscardItems(ctx, a.service, parsed, ids, force)
}

func (a *queueStoreAdapter) ClearFailed(ctx context.Context, kinds []string) (int64, error) {
	parsed, err := parseKinds(kinds)
	if err != nil {
		return 0, err
	}
	return a.service.ClearFailed(ctx, parsed)
}

func parseKinds(values []string) ([]store.Kind, error) {
	kinds := make([]store.Kind, 0, len(values))
	for _, value := range values {
		kind, err := store.ParseKind(value)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
