package api

import (
	"sort"
	"time"

	"fieldsync/internal/connectivity"
	"fieldsync/internal/reconcile"
	"fieldsync/internal/store"
	"fieldsync/internal/worker"
	"fieldsync/internal/workflow"
)

// FromQueueItem converts a store item to its API representation.
func FromQueueItem(item *store.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}
	dto := QueueItem{
		ID:            item.ID,
		Kind:          string(item.Kind),
		Store:         item.Kind.Collection(),
		Status:        string(item.Status),
		RetryCount:    item.RetryCount,
		NextAttemptAt: formatTime(item.NextAttemptAt),
		LastError:     item.LastError,
		CreatedAt:     formatTime(item.CreatedAt),
		UpdatedAt:     formatTime(item.UpdatedAt),
		Payload:       item.Payload,
		Metadata:      item.Metadata,
		BlobSize:      len(item.Blob),
	}
	return dto
}

// FromQueueItems converts a slice of store items.
func FromQueueItems(items []*store.Item) []QueueItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromStatusSummary converts orchestrator diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:        summary.Running,
		Listeners:      summary.Listeners,
		WorkerAttached: summary.WorkerAttached,
		BackgroundSync: summary.BackgroundSync,
		LastEvent:      summary.LastEvent,
		LastEventAt:    formatTime(summary.LastEventAt),
	}
	if len(summary.QueueStats) > 0 {
		status.QueueStats = make(map[string]map[string]int, len(summary.QueueStats))
		for name, stats := range summary.QueueStats {
			status.QueueStats[name] = MergeQueueStats(stats)
		}
	}
	return status
}

// FromWorkerStats converts worker activity counters.
func FromWorkerStats(stats worker.Stats) WorkerStatus {
	return WorkerStatus{
		Running:     stats.Running,
		Passes:      stats.Passes,
		LastPass:    formatTime(stats.LastPass),
		LastTrigger: stats.LastTrigger,
		Processed:   stats.LastResult.Processed,
		Succeeded:   stats.LastResult.Succeeded,
		Failed:      stats.LastResult.Failed,
		Deferred:    stats.LastResult.Deferred,
	}
}

// FromSnapshot converts a connectivity snapshot.
func FromSnapshot(snapshot connectivity.Snapshot) ConnectivityStatus {
	return ConnectivityStatus{
		State:     string(snapshot.State),
		ChangedAt: formatTime(snapshot.ChangedAt),
		LastError: snapshot.LastError,
		Netlink:   snapshot.Netlink,
	}
}

// FromRefreshSummary converts a reconcile summary.
func FromRefreshSummary(collection store.CacheCollection, summary reconcile.Summary) RefreshResponse {
	return RefreshResponse{
		Collection:  string(collection),
		Fetched:     summary.Fetched,
		Overwritten: summary.Overwritten,
		KeptLocal:   summary.KeptLocal,
		Skipped:     summary.Skipped,
	}
}

// FromEntryRibbon converts the ribbon on a cached entry. It returns false
// when the entry carries none.
func FromEntryRibbon(collection store.CacheCollection, entry *store.Entry) (Ribbon, bool) {
	if entry == nil || entry.Ribbon == nil {
		return Ribbon{}, false
	}
	return Ribbon{
		Collection: string(collection),
		ID:         entry.ID,
		UpdatedBy:  entry.Ribbon.UpdatedBy,
		UpdatedAt:  formatTime(entry.Ribbon.UpdatedAt),
	}, true
}

// MergeQueueStats converts status counts to string keys, filling in zero
// counts for every stored status.
func MergeQueueStats(stats map[store.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range store.AllStatuses() {
		out[string(status)] = 0
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// SortedStores returns the queue names of stats in drain order.
func SortedStores(stats map[string]map[string]int) []string {
	order := make(map[string]int, len(store.Kinds))
	for i, kind := range store.Kinds {
		order[kind.Collection()] = i
	}
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		oi, iok := order[names[i]]
		oj, jok := order[names[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return names[i] < names[j]
		}
	})
	return names
}

// ParseTime parses an API timestamp. It returns the zero time for empty or
// malformed values.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
