package api

import (
	"context"
	"fmt"

	"fieldsync/internal/services"
	"fieldsync/internal/store"
)

// QueueService exposes operator queue actions returning API DTOs.
type QueueService struct {
	store *store.Store
}

// NewQueueService constructs a QueueService around the local store.
func NewQueueService(st *store.Store) *QueueService {
	if st == nil {
		return nil
	}
	return &QueueService{store: st}
}

// List returns items of the given kinds (all kinds when none) filtered by
// status, in drain order.
func (s *QueueService) List(ctx context.Context, kinds []store.Kind, statuses ...store.Status) ([]QueueItem, error) {
	if s == nil {
		return nil, nil
	}
	if len(kinds) == 0 {
		kinds = store.Kinds
	}
	var out []QueueItem
	for _, kind := range kinds {
		items, err := s.store.Queue(kind).List(ctx, statuses...)
		if err != nil {
			return nil, err
		}
		out = append(out, FromQueueItems(items)...)
	}
	return out, nil
}

// Describe fetches a single queue item, or nil when it does not exist.
func (s *QueueService) Describe(ctx context.Context, kind store.Kind, id int64) (*QueueItem, error) {
	if s == nil {
		return nil, nil
	}
	item, err := s.store.Queue(kind).Get(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	dto := FromQueueItem(item)
	return &dto, nil
}

// Enqueue stores a new item due immediately.
func (s *QueueService) Enqueue(ctx context.Context, kind store.Kind, req EnqueueRequest) (EnqueueResponse, error) {
	if kind.Collection() == "" {
		return EnqueueResponse{}, services.Wrap(services.ErrValidation, "api", "enqueue", fmt.Sprintf("unknown kind %q", kind), nil)
	}
	if s == nil || !s.store.Available() {
		return EnqueueResponse{Durable: false}, nil
	}
	item, err := s.store.Queue(kind).Enqueue(ctx, store.Draft{
		Payload:  req.Payload,
		Blob:     req.Blob,
		Metadata: req.Metadata,
	})
	if err != nil {
		return EnqueueResponse{}, err
	}
	resp := EnqueueResponse{Durable: item != nil}
	if item != nil {
		dto := FromQueueItem(item)
		resp.Item = &dto
	}
	return resp, nil
}

// Retry requeues failed items of one kind; all failed items when ids is empty.
func (s *QueueService) Retry(ctx context.Context, kind store.Kind, ids []int64) (int64, error) {
	if s == nil {
		return 0, nil
	}
	return s.store.Queue(kind).RetryFailed(ctx, ids...)
}

// Discard deletes items of one kind whatever their status.
func (s *QueueService) Discard(ctx context.Context, kind store.Kind, ids []int64) (int64, error) {
	if s == nil {
		return 0, nil
	}
	return s.store.Queue(kind).Discard(ctx, ids...)
}

// ClearFailed deletes failed items of the given kinds (all kinds when none).
func (s *QueueService) ClearFailed(ctx context.Context, kinds []store.Kind) (int64, error) {
	if s == nil {
		return 0, nil
	}
	if len(kinds) == 0 {
		kinds = store.Kinds
	}
	var total int64
	for _, kind := range kinds {
		n, err := s.store.Queue(kind).ClearFailed(ctx)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Ribbons lists undismissed ribbons across every cache.
func (s *QueueService) Ribbons(ctx context.Context) ([]Ribbon, error) {
	if s == nil {
		return nil, nil
	}
	var out []Ribbon
	for _, collection := range store.CacheCollections {
		entries, err := s.store.Cache(collection).WithRibbons(ctx)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if ribbon, ok := FromEntryRibbon(collection, entry); ok {
				out = append(out, ribbon)
			}
		}
	}
	return out, nil
}

// DismissRibbon clears the ribbon on one cached entity.
func (s *QueueService) DismissRibbon(ctx context.Context, collection store.CacheCollection, id string) (bool, error) {
	if s == nil {
		return false, nil
	}
	return s.store.Cache(collection).DismissRibbon(ctx, id)
}
