package workflow

import (
	"context"
	"strings"

	"fieldsync/internal/logging"
	"fieldsync/internal/services"
	"fieldsync/internal/worker"
)

// ScheduleSync arms the background-sync tag and asks the active worker to
// process now. Without background sync support only the direct request is
// made. Failures are logged; the request is best effort.
func (m *Manager) ScheduleSync(ctx context.Context, scope string) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "all"
	}
	logger := logging.WithContext(services.WithTrigger(ctx, "schedule"), m.logger).With(logging.String("scope", scope))

	m.mu.RLock()
	registrar := m.registrar
	m.mu.RUnlock()

	if registrar != nil {
		if err := registrar.Register(ctx, m.tag); err != nil {
			logging.WarnWithContext(logger, "background sync registration failed", "background_sync_register_failed",
				logging.Error(err),
				logging.String("tag", m.tag),
				logging.String(logging.FieldImpact, "queued work waits for the next direct trigger"),
			)
		}
	}
	if !m.post(worker.ProcessNow("schedule:" + scope)) {
		logger.Info("sync scheduled without an active worker",
			logging.String(logging.FieldEventType, "sync_deferred"),
			logging.Bool("background_sync", registrar != nil),
		)
	}
}

// TriggerManualSync asks the active worker for a user-requested pass.
func (m *Manager) TriggerManualSync(ctx context.Context) error {
	if !m.post(worker.ManualSync()) {
		return services.Wrap(ErrNoActiveWorker, "workflow", "manual sync", "", nil)
	}
	logging.WithContext(ctx, m.logger).Info("manual sync requested",
		logging.String(logging.FieldEventType, "manual_sync_requested"),
	)
	return nil
}
