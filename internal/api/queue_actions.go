package api

import (
	"context"

	"fieldsync/internal/store"
)

// QueueActionService captures the queue operations needed by per-item
// retry and discard workflows.
type QueueActionService interface {
	Describe(ctx context.Context, kind store.Kind, id int64) (*QueueItem, error)
	Retry(ctx context.Context, kind store.Kind, ids []int64) (int64, error)
	Discard(ctx context.Context, kind store.Kind, ids []int64) (int64, error)
}

type ItemOutcome string

const (
	ItemRetried   ItemOutcome = "retried"
	ItemDiscarded ItemOutcome = "discarded"
	ItemNotFound  ItemOutcome = "not_found"
	ItemNotFailed ItemOutcome = "not_failed"
	ItemSending   ItemOutcome = "sending"
)

type ItemResult struct {
	ID          int64       `json:"id"`
	Outcome     ItemOutcome `json:"outcome"`
	PriorStatus string      `json:"priorStatus,omitempty"`
}

type ItemsResult struct {
	UpdatedCount int64        `json:"updatedCount"`
	Items        []ItemResult `json:"items"`
}

// RetryFailedItems validates ids and retries only failed items.
func RetryFailedItems(ctx context.Context, service QueueActionService, kind store.Kind, ids []int64) (ItemsResult, error) {
	result := ItemsResult{Items: make([]ItemResult, 0, len(ids))}
	for _, id := range ids {
		item, err := service.Describe(ctx, kind, id)
		if err != nil {
			return ItemsResult{}, err
		}
		if item == nil {
			result.Items = append(result.Items, ItemResult{ID: id, Outcome: ItemNotFound})
			continue
		}
		if item.Status != string(store.StatusFailed) {
			result.Items = append(result.Items, ItemResult{ID: id, Outcome: ItemNotFailed, PriorStatus: item.Status})
			continue
		}
		updated, err := service.Retry(ctx, kind, []int64{id})
		if err != nil {
			return ItemsResult{}, err
		}
		if updated == 0 {
			result.Items = append(result.Items, ItemResult{ID: id, Outcome: ItemNotFailed, PriorStatus: item.Status})
			continue
		}
		result.UpdatedCount += updated
		result.Items = append(result.Items, ItemResult{ID: id, Outcome: ItemRetried, PriorStatus: item.Status})
	}
	return result, nil
}

// DiscardItems deletes items by id. Items being sent right now are skipped
// unless force is set.
func DiscardItems(ctx context.Context, service QueueActionService, kind store.Kind, ids []int64, force bool) (ItemsResult, error) {
	result := ItemsResult{Items: make([]ItemResult, 0, len(ids))}
	for _, id := range ids {
		item, err := service.Describe(ctx, kind, id)
		if err != nil {
			return ItemsResult{}, err
		}
		if item == nil {
			result.Items = append(result.Items, ItemResult{ID: id, Outcome: ItemNotFound})
			continue
		}
		if item.Status == string(store.StatusSending) && !force {
			result.Items = append(result.Items, ItemResult{ID: id, Outcome: ItemSending, PriorStatus: item.Status})
			continue
		}
		removed, err := service.Discard(ctx, kind, []int64{id})
		if err != nil {
			return ItemsResult{}, err
		}
		if removed == 0 {
			result.Items = append(result.Items, ItemResult{ID: id, Outcome: ItemNotFound})
			continue
		}
		result.UpdatedCount += removed
		result.Items = append(result.Items, ItemResult{ID: id, Outcome: ItemDiscarded, PriorStatus: item.Status})
	}
	return result, nil
}
