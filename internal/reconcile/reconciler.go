package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"fieldsync/internal/config"
	"fieldsync/internal/conflict"
	"fieldsync/internal/logging"
	"fieldsync/internal/services"
	"fieldsync/internal/store"
)

// Fetcher reads server copies.
type Fetcher interface {
	Fetch(ctx context.Context, collection store.CacheCollection, id string) (map[string]any, error)
	List(ctx context.Context, collection store.CacheCollection) ([]map[string]any, error)
}

// Pusher writes a local edit to the server and returns the server's copy.
type Pusher interface {
	Push(ctx context.Context, collection store.CacheCollection, id string, entity map[string]any) (map[string]any, error)
}

// Client reads and writes server copies.
type Client interface {
	Fetcher
	Pusher
}

// ConflictHook observes resolutions that flagged a conflict.
type ConflictHook func(ctx context.Context, collection store.CacheCollection, id string, res conflict.Resolution)

// Reconciler applies server copies to the cache.
type Reconciler struct {
	store  *store.Store
	keys   conflict.Keys
	logger *slog.Logger
	hooks  []ConflictHook
	now    func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithConflictHook adds a hook run after each conflicting resolution is stored.
func WithConflictHook(hook ConflictHook) Option {
	return func(r *Reconciler) {
		if hook != nil {
			r.hooks = append(r.hooks, hook)
		}
	}
}

// New builds a reconciler using the field names from the [conflict] section.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  st,
		keys:   conflict.DefaultKeys(),
		logger: logging.NewComponentLogger(logger, "reconcile"),
		now:    time.Now,
	}
	if cfg != nil {
		r.keys = conflict.Keys{
			LocalModifiedAt: cfg.Conflict.LocalModifiedAtKey,
			ServerUpdatedAt: cfg.Conflict.ServerUpdatedAtKey,
			ServerUpdatedBy: cfg.Conflict.ServerUpdatedByKey,
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply stores a server copy. Without a pending local edit the server copy
// replaces the cache unless the cached copy carries a newer server timestamp;
// otherwise the resolver picks the survivor.
func (r *Reconciler) Apply(ctx context.Context, collection store.CacheCollection, server map[string]any) (conflict.Resolution, error) {
	id := EntityID(server)
	if id == "" {
		return conflict.Resolution{}, services.Wrap(services.ErrValidation, "reconcile", "apply", "server entity has no id", nil)
	}
	cache := r.store.Cache(collection)
	cached, err := cache.Get(ctx, id)
	if err != nil {
		return conflict.Resolution{}, err
	}

	if !cached.HasPendingEdit() {
		if r.olderThanCached(cached, server) {
			r.logger.Debug("ignoring server copy older than cache",
				logging.String(logging.FieldStore, string(collection)),
				logging.String("entity_id", id),
			)
			return conflict.Resolution{Source: conflict.SourceServer, Merged: cached.Data}, nil
		}
		entry := &store.Entry{ID: id, Data: server, FetchedAt: r.now()}
		if cached != nil {
			entry.Ribbon = cached.Ribbon
		}
		if err := cache.Put(ctx, entry); err != nil {
			return conflict.Resolution{}, err
		}
		return conflict.Resolution{Source: conflict.SourceServer, Merged: server}, nil
	}

	local := maps.Clone(cached.Data)
	if local == nil {
		local = make(map[string]any, 1)
	}
	local[r.keys.LocalModifiedAt] = cached.LocalModifiedAt.UnixMilli()

	res, err := conflict.Resolve(local, server, r.keys)
	if err != nil {
		return conflict.Resolution{}, services.Wrap(services.ErrValidation, "reconcile", "resolve", fmt.Sprintf("%s %s", collection, id), err)
	}

	entry := &store.Entry{ID: id, FetchedAt: r.now(), Ribbon: cached.Ribbon}
	switch res.Source {
	case conflict.SourceLocal:
		entry.Data = cached.Data
		entry.LocalModifiedAt = cached.LocalModifiedAt
	default:
		entry.Data = res.Merged
		if res.Ribbon != nil {
			entry.Ribbon = &store.Ribbon{UpdatedBy: res.Ribbon.UpdatedBy, UpdatedAt: res.Ribbon.UpdatedAt}
		}
	}
	if err := cache.Put(ctx, entry); err != nil {
		return conflict.Resolution{}, err
	}

	if res.Conflict {
		r.logConflict(ctx, collection, id, res)
		for _, hook := range r.hooks {
			hook(ctx, collection, id, res)
		}
	}
	return res, nil
}

// olderThanCached reports whether server is strictly older than the cached
// server copy. Missing or unreadable timestamps never block a replacement.
func (r *Reconciler) olderThanCached(cached *store.Entry, server map[string]any) bool {
	if cached == nil {
		return false
	}
	cachedAt, err := conflict.Instant(cached.Data[r.keys.ServerUpdatedAt])
	if err != nil {
		return false
	}
	incomingAt, err := conflict.Instant(server[r.keys.ServerUpdatedAt])
	if err != nil {
		return false
	}
	return incomingAt.Before(cachedAt)
}

func (r *Reconciler) logConflict(ctx context.Context, collection store.CacheCollection, id string, res conflict.Resolution) {
	logger := logging.WithContext(services.WithStore(ctx, string(collection)), r.logger).With(logging.String("entity_id", id))
	if res.Source == conflict.SourceServer {
		attrs := []logging.Attr{
			logging.String(logging.FieldImpact, "local edit replaced by the server copy"),
			logging.String(logging.FieldErrorHint, "review the ribbon and redo the edit if still needed"),
		}
		if res.Ribbon != nil {
			attrs = append(attrs,
				logging.String("updated_by", res.Ribbon.UpdatedBy),
				logging.Time("updated_at", res.Ribbon.UpdatedAt),
			)
		}
		logging.WarnWithContext(logger, "server change overwrote local edit", "conflict_overwritten", attrs...)
		return
	}
	logger.Info("local edit kept over older server copy",
		logging.String(logging.FieldEventType, "conflict_local_kept"),
	)
}

// Summary counts what a refresh did.
type Summary struct {
	Fetched     int `json:"fetched"`
	Overwritten int `json:"overwritten"`
	KeptLocal   int `json:"keptLocal"`
	Skipped     int `json:"skipped"`
}

// Refresh pulls every server entity of collection through Apply. Entities
// that cannot be resolved are skipped and logged.
func (r *Reconciler) Refresh(ctx context.Context, fetcher Fetcher, collection store.CacheCollection) (Summary, error) {
	var summary Summary
	entities, err := fetcher.List(ctx, collection)
	if err != nil {
		return summary, err
	}
	for _, entity := range entities {
		res, err := r.Apply(ctx, collection, entity)
		if err != nil {
			summary.Skipped++
			r.logger.Warn("skipping server entity",
				logging.Error(err),
				logging.String(logging.FieldStore, string(collection)),
				logging.String("entity_id", EntityID(entity)),
				logging.String(logging.FieldEventType, "reconcile_skipped"),
				logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			)
			continue
		}
		summary.Fetched++
		switch {
		case res.Conflict && res.Source == conflict.SourceServer:
			summary.Overwritten++
		case res.Conflict && res.Source == conflict.SourceLocal:
			summary.KeptLocal++
		}
	}
	return summary, nil
}

// Edit records a local change and tries to push it. A push the server
// refuses is settled by fetching the server copy and resolving; a push that
// fails transiently leaves the edit pending for the next refresh.
func (r *Reconciler) Edit(ctx context.Context, client Client, collection store.CacheCollection, id string, data map[string]any) (conflict.Resolution, error) {
	at := r.now()
	cache := r.store.Cache(collection)
	if err := cache.MarkLocalEdit(ctx, id, data, at); err != nil {
		return conflict.Resolution{}, err
	}
	if client == nil {
		return conflict.Resolution{Source: conflict.SourceLocal, Merged: data}, nil
	}

	server, err := client.Push(ctx, collection, id, data)
	switch {
	case err == nil:
		entry := &store.Entry{ID: id, Data: server, FetchedAt: r.now()}
		if cached, getErr := cache.Get(ctx, id); getErr == nil && cached != nil {
			entry.Ribbon = cached.Ribbon
		}
		if err := cache.Put(ctx, entry); err != nil {
			return conflict.Resolution{}, err
		}
		return conflict.Resolution{Source: conflict.SourceServer, Merged: server}, nil
	case errors.Is(err, services.ErrRejected):
		current, fetchErr := client.Fetch(ctx, collection, id)
		if fetchErr != nil {
			return conflict.Resolution{}, fetchErr
		}
		return r.Apply(ctx, collection, current)
	default:
		r.logger.Info("local edit kept pending",
			logging.String(logging.FieldEventType, "edit_pending"),
			logging.String(logging.FieldStore, string(collection)),
			logging.String("entity_id", id),
			logging.String("reason", services.ErrorHint(err)),
		)
		return conflict.Resolution{Source: conflict.SourceLocal, Merged: data}, nil
	}
}

// EntityID returns the remote id of an entity as a string.
func EntityID(entity map[string]any) string {
	switch v := entity["id"].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
