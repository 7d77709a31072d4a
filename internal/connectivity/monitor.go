package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/logging"
)

// Prober checks that the remote authority answers.
type Prober interface {
	Health(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

// Health calls f.
func (f ProberFunc) Health(ctx context.Context) error {
	return f(ctx)
}

// State is the last known reachability.
type State string

const (
	StateUnknown State = "unknown"
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// Monitor probes the remote and notifies subscribers when it comes back.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	netlink  *netlinkWatcher

	mu        sync.Mutex
	state     State
	changedAt time.Time
	lastErr   error
	subs      map[uint64]func()
	nextID    uint64
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	wake      chan struct{}
}

// NewMonitor builds a monitor. A nil prober means the remote is assumed
// reachable and no transitions are ever reported.
func NewMonitor(cfg *config.Config, prober Prober, logger *slog.Logger) *Monitor {
	m := &Monitor{
		prober:   prober,
		interval: 15 * time.Second,
		timeout:  5 * time.Second,
		logger:   logging.NewComponentLogger(logger, "connectivity"),
		state:    StateUnknown,
		subs:     make(map[uint64]func()),
		wake:     make(chan struct{}, 1),
	}
	if cfg != nil {
		if interval := cfg.ProbeInterval(); interval > 0 {
			m.interval = interval
		}
		if timeout := cfg.RemoteTimeout(); timeout > 0 && timeout < m.interval {
			m.timeout = timeout
		}
		if cfg.Connectivity.Netlink {
			m.netlink = newNetlinkWatcher(m.logger, m.Wake)
		}
	}
	if prober == nil {
		m.state = StateOnline
	}
	return m
}

// OnReconnect registers fn to run on every offline to online transition.
func (m *Monitor) OnReconnect(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Start begins interval probing and, when enabled, netlink watching.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	if m.netlink != nil {
		m.netlink.Start(runCtx)
	}
	go m.loop(runCtx)
}

// Stop halts probing and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	if m.netlink != nil {
		m.netlink.Stop()
	}
	m.wg.Wait()
}

// Wake asks the loop to probe immediately.
func (m *Monitor) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		case <-m.wake:
			m.Check(ctx)
		}
	}
}

// Check probes once, records the result and fires reconnect subscribers on
// an offline to online transition. It returns the new state.
func (m *Monitor) Check(ctx context.Context) State {
	if m.prober == nil {
		return StateOnline
	}
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.prober.Health(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return m.State()
	}

	next := StateOnline
	if err != nil {
		next = StateOffline
	}

	m.mu.Lock()
	prev := m.state
	m.lastErr = err
	var subs []func()
	if prev != next {
		m.state = next
		m.changedAt = time.Now()
		if prev == StateOffline && next == StateOnline {
			subs = make([]func(), 0, len(m.subs))
			for _, fn := range m.subs {
				subs = append(subs, fn)
			}
		}
	}
	m.mu.Unlock()

	if prev != next {
		m.logTransition(prev, next, err)
	}
	for _, fn := range subs {
		fn()
	}
	return next
}

func (m *Monitor) logTransition(prev, next State, err error) {
	switch next {
	case StateOffline:
		logging.WarnWithContext(m.logger, "remote unreachable; working offline", "connectivity_offline",
			logging.Error(err),
			logging.String("previous", string(prev)),
			logging.String(logging.FieldErrorHint, "queued work is delivered when the remote answers again"),
			logging.String(logging.FieldImpact, "deliveries paused"),
		)
	case StateOnline:
		m.logger.Info("remote reachable",
			logging.String(logging.FieldEventType, "connectivity_online"),
			logging.String("previous", string(prev)),
		)
	}
}

// Snapshot describes the last probe.
type Snapshot struct {
	State     State     `json:"state"`
	ChangedAt time.Time `json:"changedAt,omitzero"`
	LastError string    `json:"lastError,omitempty"`
	Netlink   bool      `json:"netlink"`
}

// State returns the last known reachability.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the last probe outcome.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{State: m.state, ChangedAt: m.changedAt, Netlink: m.netlink.Running()}
	if m.lastErr != nil {
		snap.LastError = m.lastErr.Error()
	}
	return snap
}
