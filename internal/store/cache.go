package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"fieldsync/internal/services"
)

const entryColumns = "id, data, fetched_at, local_modified_at, ribbon"

// Cache is a handle on one read-through cache keyed by remote id. Handles
// obtained from a degraded Store return nil results and nil errors.
type Cache struct {
	store      *Store
	collection CacheCollection
}

// Collection returns the backing collection name.
func (c *Cache) Collection() CacheCollection {
	return c.collection
}

func (c *Cache) ready() (bool, error) {
	if c == nil || !c.store.Available() {
		return false, nil
	}
	switch c.collection {
	case CollectionTasks, CollectionNotifications:
		return true, nil
	default:
		return false, services.Wrap(services.ErrValidation, "store", "cache", fmt.Sprintf("unknown collection %q", c.collection), nil)
	}
}

// Put inserts or replaces the cached copy of an entity.
func (c *Cache) Put(ctx context.Context, entry *Entry) error {
	ok, err := c.ready()
	if !ok || err != nil || entry == nil {
		return err
	}
	if strings.TrimSpace(entry.ID) == "" {
		return services.Wrap(services.ErrValidation, "store", "cache put", "entity id is required", nil)
	}
	data, err := json.Marshal(entry.Data)
	if err != nil {
		return services.Wrap(services.ErrValidation, "store", "cache put", "encode entity", err)
	}
	ribbon, err := encodeRibbon(entry.Ribbon)
	if err != nil {
		return err
	}
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = nowUTC()
	}
	if _, err := c.store.execWithRetry(
		ctx,
		`INSERT INTO `+string(c.collection)+` (id, data, fetched_at, local_modified_at, ribbon)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             data = excluded.data,
             fetched_at = excluded.fetched_at,
             local_modified_at = excluded.local_modified_at,
             ribbon = excluded.ribbon`,
		entry.ID,
		string(data),
		toMillis(entry.FetchedAt),
		nullableMillis(entry.LocalModifiedAt),
		ribbon,
	); err != nil {
		return fmt.Errorf("put %s %s: %w", c.collection, entry.ID, err)
	}
	return nil
}

// MarkLocalEdit stores a local change to an entity and stamps it with the
// edit instant. The entity is created when it is not cached yet.
func (c *Cache) MarkLocalEdit(ctx context.Context, id string, data map[string]any, at time.Time) error {
	ok, err := c.ready()
	if !ok || err != nil {
		return err
	}
	existing, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	entry := &Entry{ID: id, Data: data}
	if existing != nil {
		entry.FetchedAt = existing.FetchedAt
		entry.Ribbon = existing.Ribbon
	}
	at = at.UTC().Truncate(time.Millisecond)
	entry.LocalModifiedAt = &at
	return c.Put(ctx, entry)
}

// Get returns the cached entity, or nil when it is not cached.
func (c *Cache) Get(ctx context.Context, id string) (*Entry, error) {
	ok, err := c.ready()
	if !ok || err != nil {
		return nil, err
	}
	ctx = ensureContext(ctx)
	row := c.store.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM `+string(c.collection)+` WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", c.collection, id, err)
	}
	return entry, nil
}

// GetAll returns every cached entity ordered by id.
func (c *Cache) GetAll(ctx context.Context) ([]*Entry, error) {
	return c.query(ctx, `SELECT `+entryColumns+` FROM `+string(c.collection)+` ORDER BY id`)
}

// WithRibbons returns cached entities that still carry an undismissed ribbon.
func (c *Cache) WithRibbons(ctx context.Context) ([]*Entry, error) {
	return c.query(ctx, `SELECT `+entryColumns+` FROM `+string(c.collection)+` WHERE ribbon IS NOT NULL ORDER BY id`)
}

func (c *Cache) query(ctx context.Context, query string) ([]*Entry, error) {
	ok, err := c.ready()
	if !ok || err != nil {
		return nil, err
	}
	ctx = ensureContext(ctx)
	rows, err := c.store.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.collection, err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.collection, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Delete removes the cached entity. Deleting a missing entity is not an error.
func (c *Cache) Delete(ctx context.Context, id string) error {
	ok, err := c.ready()
	if !ok || err != nil {
		return err
	}
	if _, err := c.store.execWithRetry(ctx, `DELETE FROM `+string(c.collection)+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", c.collection, id, err)
	}
	return nil
}

// DismissRibbon clears the ribbon on a cached entity. It reports whether a
// ribbon was present.
func (c *Cache) DismissRibbon(ctx context.Context, id string) (bool, error) {
	ok, err := c.ready()
	if !ok || err != nil {
		return false, err
	}
	res, err := c.store.execWithRetry(ctx, `UPDATE `+string(c.collection)+` SET ribbon = NULL WHERE id = ? AND ribbon IS NOT NULL`, id)
	if err != nil {
		return false, fmt.Errorf("dismiss ribbon %s %s: %w", c.collection, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id              string
		data            string
		fetchedAt       int64
		localModifiedAt sql.NullInt64
		ribbon          sql.NullString
	)
	if err := scanner.Scan(&id, &data, &fetchedAt, &localModifiedAt, &ribbon); err != nil {
		return nil, err
	}
	entry := &Entry{
		ID:              id,
		FetchedAt:       fromMillis(fetchedAt),
		LocalModifiedAt: timeFromNull(localModifiedAt),
	}
	decoder := json.NewDecoder(bytes.NewReader([]byte(data)))
	// Epoch-millisecond timestamps must survive the round trip exactly.
	decoder.UseNumber()
	if err := decoder.Decode(&entry.Data); err != nil {
		return nil, fmt.Errorf("decode entity %s: %w", id, err)
	}
	if ribbon.Valid && ribbon.String != "" {
		var r Ribbon
		if err := json.Unmarshal([]byte(ribbon.String), &r); err != nil {
			return nil, fmt.Errorf("decode ribbon %s: %w", id, err)
		}
		entry.Ribbon = &r
	}
	return entry, nil
}

func encodeRibbon(r *Ribbon) (any, error) {
	if r == nil {
		return nil, nil
	}
	snapshot := *r
	snapshot.UpdatedAt = snapshot.UpdatedAt.UTC().Truncate(time.Millisecond)
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("encode ribbon: %w", err)
	}
	return string(data), nil
}
