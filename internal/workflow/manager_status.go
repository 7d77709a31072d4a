package workflow

import (
	"context"
	"time"

	"fieldsync/internal/broadcast"
	"fieldsync/internal/logging"
	"fieldsync/internal/store"
)

// StatusSummary represents lightweight orchestrator diagnostics.
type StatusSummary struct {
	Running        bool                            `json:"running"`
	Listeners      int                             `json:"listeners"`
	WorkerAttached bool                            `json:"workerAttached"`
	BackgroundSync bool                            `json:"backgroundSync"`
	StoreAvailable bool                            `json:"storeAvailable"`
	LastEvent      *broadcast.Message              `json:"lastEvent,omitempty"`
	LastEventAt    time.Time                       `json:"lastEventAt,omitzero"`
	QueueStats     map[string]map[store.Status]int `json:"queueStats,omitempty"`
}

// Status returns the latest orchestrator information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:        m.running,
		Listeners:      len(m.listeners),
		WorkerAttached: m.worker != nil,
		BackgroundSync: m.registrar != nil,
		LastEventAt:    m.lastEventAt,
	}
	if m.lastEvent != nil {
		event := *m.lastEvent
		summary.LastEvent = &event
	}
	m.mu.RUnlock()

	summary.StoreAvailable = m.store.Available()
	if !summary.StoreAvailable {
		return summary
	}
	summary.QueueStats = make(map[string]map[store.Status]int, len(store.Kinds))
	for _, q := range m.store.Queues() {
		stats, err := q.Stats(ctx)
		if err != nil {
			m.logger.Warn("failed to read queue stats", logging.Error(err), logging.String(logging.FieldStore, q.Collection()))
			continue
		}
		summary.QueueStats[q.Collection()] = stats
	}
	return summary
}
