package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fieldsync/internal/broadcast"
	"fieldsync/internal/config"
	"fieldsync/internal/logging"
	"fieldsync/internal/store"
	"fieldsync/internal/worker"
)

// ErrNoActiveWorker is returned when a request needs a worker and none is attached.
var ErrNoActiveWorker = errors.New("no active sync worker")

// Listener receives sync events.
type Listener func(broadcast.Message)

// ReconnectSource reports offline to online transitions.
type ReconnectSource interface {
	OnReconnect(fn func()) (unsubscribe func())
}

// Manager is the sync orchestrator for one context.
type Manager struct {
	cfg          *config.Config
	store        *store.Store
	channel      broadcast.Channel
	logger       *slog.Logger
	pollInterval time.Duration
	tag          string

	mu          sync.RWMutex
	worker      worker.Poster
	registrar   worker.Registrar
	reconnects  ReconnectSource
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubs      []func()
	channelSub  func()
	listeners   map[uint64]Listener
	nextID      uint64
	lastEvent   *broadcast.Message
	lastEventAt time.Time
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithWorker attaches the worker that runs delivery passes.
func WithWorker(w worker.Poster) Option {
	return func(m *Manager) {
		m.worker = w
	}
}

// WithRegistrar enables platform background sync.
func WithRegistrar(r worker.Registrar) Option {
	return func(m *Manager) {
		m.registrar = r
	}
}

// WithReconnectSource wakes the worker whenever connectivity returns.
func WithReconnectSource(src ReconnectSource) Option {
	return func(m *Manager) {
		m.reconnects = src
	}
}

// NewManager constructs an orchestrator bound to channel. The store is only
// read for status reporting and may be degraded.
func NewManager(cfg *config.Config, st *store.Store, channel broadcast.Channel, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		store:     st,
		channel:   channel,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		tag:       config.Default().Sync.Tag,
		listeners: make(map[uint64]Listener),
	}
	if cfg != nil {
		m.pollInterval = cfg.PollInterval()
		if cfg.Sync.Tag != "" {
			m.tag = cfg.Sync.Tag
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	if cfg != nil && !cfg.Sync.BackgroundSync {
		m.registrar = nil
	}
	return m
}

// SetWorker replaces the active worker. Passing nil detaches it.
func (m *Manager) SetWorker(w worker.Poster) {
	m.mu.Lock()
	m.worker = w
	m.mu.Unlock()
}
