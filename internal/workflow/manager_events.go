package workflow

import (
	"sync"
	"time"

	"fieldsync/internal/broadcast"
)

// OnSyncEvent registers listener for sync:success, sync:failure and
// manual-sync messages from any context. The returned function removes it.
func (m *Manager) OnSyncEvent(listener Listener) (unsubscribe func()) {
	if listener == nil {
		return func() {}
	}
	m.mu.Lock()
	m.ensureSubscribedLocked()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) ensureSubscribedLocked() {
	if m.channelSub != nil || m.channel == nil {
		return
	}
	m.channelSub = m.channel.Subscribe(m.dispatch)
}

func (m *Manager) dispatch(msg broadcast.Message) {
	if !msg.Type.Known() {
		return
	}
	m.mu.Lock()
	snapshot := msg
	m.lastEvent = &snapshot
	m.lastEventAt = time.Now()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(msg)
	}
}
