package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"fieldsync/internal/config"
	"fieldsync/internal/logging"
	"fieldsync/internal/services"
)

// Store is the durable local store backed by SQLite. A Store with no
// database is degraded and answers every call with empty results.
type Store struct {
	db     *sql.DB
	path   string
	reason error
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the local store database. Use OpenOrDegrade
// when the caller must keep running without durable storage.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "store", "open", "nil config", nil)
	}
	if cfg.Store.Disabled {
		return nil, services.Wrap(services.ErrStorageUnavailable, "store", "open", "disabled by configuration", nil)
	}
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, "store", "open", "create data directory", err)
	}
	return OpenPath(cfg.DatabasePath(), cfg.Store.BusyTimeoutMS)
}

// OpenPath opens the database file at path directly.
func OpenPath(dbPath string, busyTimeoutMS int) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			if err == nil {
				err = fmt.Errorf("%s is not a directory", dir)
			}
			return nil, services.Wrap(services.ErrStorageUnavailable, "store", "open", "data directory", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, "store", "open", "open sqlite db", err)
	}
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = 5000
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS),
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, services.Wrap(services.ErrStorageUnavailable, "store", "open", fmt.Sprintf("apply pragma %q", pragma), execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrStorageUnavailable, "store", "open", "apply migrations", err)
	}
	return store, nil
}

// OpenOrDegrade opens the store and falls back to a degraded Store when the
// database is unavailable. It never fails.
func OpenOrDegrade(cfg *config.Config, logger *slog.Logger) *Store {
	s, err := Open(cfg)
	if err == nil {
		return s
	}
	logging.WarnWithContext(
		logging.NewComponentLogger(logger, "store"),
		"local store unavailable; continuing without durability",
		"store_unavailable",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
		logging.String(logging.FieldImpact, "queued work is not persisted across restarts"),
	)
	return Degraded(err)
}

// Degraded returns a Store with no backing database.
func Degraded(reason error) *Store {
	if reason == nil {
		reason = services.ErrStorageUnavailable
	}
	return &Store{reason: reason}
}

// Available reports whether the store is backed by a database.
func (s *Store) Available() bool {
	return s != nil && s.db != nil
}

// Reason explains why the store is degraded. It is nil for an available store.
func (s *Store) Reason() error {
	if s == nil {
		return services.ErrStorageUnavailable
	}
	return s.reason
}

// Path returns the database file location, or "" when degraded.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Queue returns the handle for one outbound queue.
func (s *Store) Queue(kind Kind) *Queue {
	return &Queue{store: s, kind: kind, table: kind.Collection()}
}

// Queues returns handles for every outbound queue in drain order.
func (s *Store) Queues() []*Queue {
	out := make([]*Queue, 0, len(Kinds))
	for _, kind := range Kinds {
		out = append(out, s.Queue(kind))
	}
	return out
}

// Cache returns the handle for one read-through cache.
func (s *Store) Cache(collection CacheCollection) *Cache {
	return &Cache{store: s, collection: collection}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
