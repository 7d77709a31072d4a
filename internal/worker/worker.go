package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldsync/internal/broadcast"
	"fieldsync/internal/config"
	"fieldsync/internal/delivery"
	"fieldsync/internal/logging"
	"fieldsync/internal/services"
	"fieldsync/internal/store"
)

const mailboxSize = 32

// ErrAlreadyRunning is returned by Run when the worker loop is active.
var ErrAlreadyRunning = errors.New("worker already running")

// Worker owns delivery for one store.
type Worker struct {
	store          *store.Store
	send           delivery.Sender
	channel        broadcast.Channel
	logger         *slog.Logger
	opts           delivery.Options
	sendingTimeout time.Duration
	hooks          []func(context.Context, delivery.Outcome)

	mailbox chan Message

	mu         sync.RWMutex
	running    bool
	passes     int
	lastPass   time.Time
	lastResult delivery.Result
	lastTrig   string
}

// Option configures a Worker.
type Option func(*Worker)

// WithClock replaces the delivery clock.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.opts.Clock = now
	}
}

// WithOutcomeHook adds a callback run after each attempt is broadcast.
func WithOutcomeHook(hook func(context.Context, delivery.Outcome)) Option {
	return func(w *Worker) {
		if hook != nil {
			w.hooks = append(w.hooks, hook)
		}
	}
}

// New builds a worker. A nil sender disables delivery; passes then only
// reclaim stale items.
func New(cfg *config.Config, st *store.Store, send delivery.Sender, channel broadcast.Channel, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		store:   st,
		send:    send,
		channel: channel,
		logger:  logging.NewComponentLogger(logger, "worker"),
		opts:    delivery.OptionsFromConfig(cfg),
		mailbox: make(chan Message, mailboxSize),
	}
	if cfg != nil {
		w.sendingTimeout = cfg.SendingTimeout()
	}
	w.opts.Logger = logger
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Post queues msg without blocking. It reports false when the mailbox is
// full; a pass is already pending in that case.
func (w *Worker) Post(msg Message) bool {
	select {
	case w.mailbox <- msg:
		return true
	default:
		w.logger.Debug("mailbox full; message coalesced", logging.String("type", string(msg.Type)))
		return false
	}
}

// Run serves the mailbox until ctx is cancelled. Messages that arrive while
// a pass runs are coalesced into the next pass.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	w.logger.Info("worker started", logging.String(logging.FieldEventType, "worker_start"))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", logging.String(logging.FieldEventType, "worker_stop"))
			return nil
		case msg := <-w.mailbox:
			batch := append([]Message{msg}, w.pending()...)
			trigger := msg.trigger()
			for _, m := range batch {
				if m.Type == MsgManualSync {
					trigger = m.trigger()
					w.announceManual(ctx)
				}
			}
			w.Drain(ctx, trigger)
		}
	}
}

func (w *Worker) pending() []Message {
	var out []Message
	for {
		select {
		case msg := <-w.mailbox:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func (w *Worker) announceManual(ctx context.Context) {
	if w.channel == nil {
		return
	}
	if err := w.channel.Publish(ctx, broadcast.ManualSync()); err != nil {
		w.logger.Warn("manual sync broadcast failed", logging.Error(err))
	}
}

// Drain runs one full pass synchronously and returns its counts.
func (w *Worker) Drain(ctx context.Context, trigger string) delivery.Result {
	ctx = services.WithRequestID(services.WithTrigger(ctx, trigger), uuid.NewString())
	logger := logging.WithContext(ctx, w.logger)

	w.reclaim(ctx, logger)

	var result delivery.Result
	if w.send != nil {
		opts := w.opts
		opts.OnOutcome = func(outcome delivery.Outcome) { w.publishOutcome(ctx, outcome) }
		result = delivery.Drain(ctx, w.store, w.send, opts)
	} else {
		logger.Debug("no sender configured; delivery skipped")
	}

	w.mu.Lock()
	w.passes++
	w.lastPass = time.Now()
	w.lastResult = result
	w.lastTrig = trigger
	w.mu.Unlock()
	return result
}

func (w *Worker) reclaim(ctx context.Context, logger *slog.Logger) {
	if w.sendingTimeout <= 0 || !w.store.Available() {
		return
	}
	cutoff := time.Now().Add(-w.sendingTimeout)
	for _, q := range w.store.Queues() {
		reclaimed, err := q.ReclaimStaleSending(ctx, cutoff)
		if err != nil {
			logger.Warn("reclaim stale sending failed; stuck items may remain",
				logging.Error(err),
				logging.String(logging.FieldStore, q.Collection()),
				logging.String(logging.FieldEventType, "reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check local store access"),
			)
			continue
		}
		if reclaimed > 0 {
			logger.Info("reclaimed stale items",
				logging.String(logging.FieldStore, q.Collection()),
				logging.Int64("count", reclaimed),
			)
		}
	}
}

func (w *Worker) publishOutcome(ctx context.Context, outcome delivery.Outcome) {
	item := outcome.Item
	if w.channel != nil && item != nil {
		msg := broadcast.SyncSuccess(item.Kind.Collection(), item.ID)
		if outcome.Err != nil {
			msg = broadcast.SyncFailure(item.Kind.Collection(), item.ID, outcome.Err)
		}
		if err := w.channel.Publish(ctx, msg); err != nil {
			w.logger.Warn("sync result broadcast failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "broadcast_failed"),
				logging.String(logging.FieldImpact, "other contexts miss this result"),
			)
		}
	}
	for _, hook := range w.hooks {
		hook(ctx, outcome)
	}
}

// Stats describes recent worker activity.
type Stats struct {
	Running     bool            `json:"running"`
	Passes      int             `json:"passes"`
	LastPass    time.Time       `json:"lastPass,omitzero"`
	LastTrigger string          `json:"lastTrigger,omitempty"`
	LastResult  delivery.Result `json:"lastResult"`
}

// Stats returns a snapshot of worker activity.
func (w *Worker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Stats{
		Running:     w.running,
		Passes:      w.passes,
		LastPass:    w.lastPass,
		LastTrigger: w.lastTrig,
		LastResult:  w.lastResult,
	}
}
