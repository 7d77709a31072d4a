package delivery

import (
	"context"
	"log/slog"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/store"
)

// Sender delivers one item to the remote authority. It must return nil only
// on unambiguous success.
type Sender interface {
	Send(ctx context.Context, item *store.Item) error
}

// SendFunc adapts a function to Sender.
type SendFunc func(ctx context.Context, item *store.Item) error

// Send calls f.
func (f SendFunc) Send(ctx context.Context, item *store.Item) error {
	return f(ctx, item)
}

// ItemStore is the slice of the local store a pass needs. *store.Queue
// satisfies it.
type ItemStore interface {
	GetAllQueued(ctx context.Context) ([]*store.Item, error)
	Update(ctx context.Context, item *store.Item) error
	Remove(ctx context.Context, id int64) error
}

// Outcome reports a single delivery attempt.
type Outcome struct {
	Item *store.Item
	// Err is nil when the item was delivered.
	Err error
	// Permanent is set when the attempt exhausted the retry budget.
	Permanent bool
}

// Options tunes a pass. Start from DefaultOptions or OptionsFromConfig;
// MaxRetries of zero means a single attempt.
type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	Jitter     time.Duration

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
	// RandomJitter returns a value in [0, limit]. Defaults to a uniform draw.
	RandomJitter func(limit time.Duration) time.Duration
	// OnOutcome is called after each attempt has been persisted.
	OnOutcome func(Outcome)
	Logger    *slog.Logger
}

// DefaultOptions returns five retries with a one second base delay and up to
// half a second of jitter.
func DefaultOptions() Options {
	return Options{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		Jitter:     DefaultJitter,
	}
}

// OptionsFromConfig maps the [delivery] config section onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	if cfg == nil {
		return opts
	}
	opts.MaxRetries = cfg.Delivery.MaxRetries
	opts.BaseDelay = cfg.BaseDelay()
	opts.Jitter = cfg.Jitter()
	return opts
}

func (o Options) normalized() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.Jitter < 0 {
		o.Jitter = 0
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.RandomJitter == nil {
		o.RandomJitter = randomJitter
	}
	return o
}
