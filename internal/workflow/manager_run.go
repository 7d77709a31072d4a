package workflow

import (
	"context"
	"time"

	"fieldsync/internal/logging"
	"fieldsync/internal/worker"
)

// StartSync subscribes to the shared channel, starts the poll timer and the
// reconnect trigger, and asks the worker for an initial pass. Calling it
// while running does nothing.
func (m *Manager) StartSync(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.ensureSubscribedLocked()

	if m.reconnects != nil {
		m.unsubs = append(m.unsubs, m.reconnects.OnReconnect(func() {
			m.post(worker.ProcessNow("reconnect"))
		}))
	}
	if m.pollInterval > 0 {
		m.wg.Add(1)
		go m.runTimer(runCtx, m.pollInterval)
	}
	m.mu.Unlock()

	m.logger.Info("sync started",
		logging.String(logging.FieldEventType, "sync_start"),
		logging.Duration("poll_interval", m.pollInterval),
		logging.Bool("background_sync", m.registrar != nil),
	)
	m.post(worker.ProcessNow("startup"))
	return nil
}

// StopSync releases every subscription and listener. Calling it when
// stopped does nothing.
func (m *Manager) StopSync() {
	m.mu.Lock()
	if !m.running && m.channelSub == nil {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	unsubs := m.unsubs
	channelSub := m.channelSub
	m.running = false
	m.cancel = nil
	m.unsubs = nil
	m.channelSub = nil
	m.listeners = make(map[uint64]Listener)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	for _, unsub := range unsubs {
		unsub()
	}
	if channelSub != nil {
		channelSub()
	}
	m.logger.Info("sync stopped", logging.String(logging.FieldEventType, "sync_stop"))
}

// Running reports whether StartSync is in effect.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) runTimer(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.post(worker.ProcessNow("timer"))
		}
	}
}

// post delivers msg to the active worker. It reports false when no worker
// is attached.
func (m *Manager) post(msg worker.Message) bool {
	m.mu.RLock()
	w := m.worker
	m.mu.RUnlock()
	if w == nil {
		m.logger.Debug("no active worker; message dropped",
			logging.String("type", string(msg.Type)),
			logging.String(logging.FieldTrigger, msg.Trigger),
		)
		return false
	}
	w.Post(msg)
	return true
}
