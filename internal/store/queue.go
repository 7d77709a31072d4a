package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fieldsync/internal/services"
)

const itemColumns = "id, payload, blob, metadata, status, retry_count, next_attempt_at, last_error, created_at, updated_at"

// Queue is a handle on one outbound collection. Handles obtained from a
// degraded Store return nil results and nil errors.
type Queue struct {
	store *Store
	kind  Kind
	table string
}

// Kind returns the queue kind.
func (q *Queue) Kind() Kind {
	return q.kind
}

// Collection returns the backing collection name.
func (q *Queue) Collection() string {
	return q.table
}

func (q *Queue) ready() (bool, error) {
	if q == nil || !q.store.Available() {
		return false, nil
	}
	if q.table == "" {
		return false, services.Wrap(services.ErrValidation, "store", "queue", fmt.Sprintf("unknown kind %q", q.kind), nil)
	}
	return true, nil
}

// Enqueue appends a new queued item, due immediately.
func (q *Queue) Enqueue(ctx context.Context, draft Draft) (*Item, error) {
	ok, err := q.ready()
	if !ok || err != nil {
		return nil, err
	}
	if err := draft.validate(q.kind); err != nil {
		return nil, services.Wrap(services.ErrValidation, "store", "enqueue", "", err)
	}

	now := toMillis(nowUTC())
	res, err := q.store.execWithRetry(
		ctx,
		`INSERT INTO `+q.table+` (payload, blob, metadata, status, retry_count, next_attempt_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
		nullableString(string(draft.Payload)),
		nullableBytes(draft.Blob),
		nullableString(string(draft.Metadata)),
		StatusQueued,
		now,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", q.kind, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: last insert id: %w", q.kind, err)
	}
	return q.Get(ctx, id)
}

// GetAllQueued returns every stored item regardless of status, oldest first.
// Callers decide which items are due.
func (q *Queue) GetAllQueued(ctx context.Context) ([]*Item, error) {
	return q.List(ctx)
}

// List returns items filtered by status (all when none given), oldest first.
func (q *Queue) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	ok, err := q.ready()
	if !ok || err != nil {
		return nil, err
	}
	query := `SELECT ` + itemColumns + ` FROM ` + q.table
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, id`

	ctx = ensureContext(ctx)
	rows, err := q.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", q.table, err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := q.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.table, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get returns the item with the given id, or nil when it does not exist.
func (q *Queue) Get(ctx context.Context, id int64) (*Item, error) {
	ok, err := q.ready()
	if !ok || err != nil {
		return nil, err
	}
	ctx = ensureContext(ctx)
	row := q.store.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM `+q.table+` WHERE id = ?`, id)
	item, err := q.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", q.kind, id, err)
	}
	return item, nil
}

// Update persists the mutable delivery state of an item.
func (q *Queue) Update(ctx context.Context, item *Item) error {
	ok, err := q.ready()
	if !ok || err != nil || item == nil {
		return err
	}
	item.UpdatedAt = nowUTC()
	if _, err := q.store.execWithRetry(
		ctx,
		`UPDATE `+q.table+`
         SET status = ?, retry_count = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
         WHERE id = ?`,
		item.Status,
		item.RetryCount,
		ceilMillis(item.NextAttemptAt),
		nullableString(item.LastError),
		toMillis(item.UpdatedAt),
		item.ID,
	); err != nil {
		return fmt.Errorf("update %s %d: %w", q.kind, item.ID, err)
	}
	return nil
}

// Remove deletes an item. Removing a missing item is not an error.
func (q *Queue) Remove(ctx context.Context, id int64) error {
	ok, err := q.ready()
	if !ok || err != nil {
		return err
	}
	if _, err := q.store.execWithRetry(ctx, `DELETE FROM `+q.table+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove %s %d: %w", q.kind, id, err)
	}
	return nil
}

// RetryFailed requeues failed items with a fresh retry budget, due now.
// With no ids every failed item is requeued.
func (q *Queue) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	ok, err := q.ready()
	if !ok || err != nil {
		return 0, err
	}
	now := toMillis(nowUTC())
	query := `UPDATE ` + q.table + `
        SET status = ?, retry_count = 0, next_attempt_at = ?, last_error = NULL, updated_at = ?
        WHERE status = ?`
	args := []any{StatusQueued, now, now, StatusFailed}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := q.store.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed %s: %w", q.table, err)
	}
	return res.RowsAffected()
}

// Discard deletes the given items whatever their status.
func (q *Queue) Discard(ctx context.Context, ids ...int64) (int64, error) {
	ok, err := q.ready()
	if !ok || err != nil || len(ids) == 0 {
		return 0, err
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := q.store.execWithRetry(ctx, `DELETE FROM `+q.table+` WHERE id IN (`+makePlaceholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("discard %s: %w", q.table, err)
	}
	return res.RowsAffected()
}

// ClearFailed deletes every failed item.
func (q *Queue) ClearFailed(ctx context.Context) (int64, error) {
	ok, err := q.ready()
	if !ok || err != nil {
		return 0, err
	}
	res, err := q.store.execWithRetry(ctx, `DELETE FROM `+q.table+` WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed %s: %w", q.table, err)
	}
	return res.RowsAffected()
}

// ReclaimStaleSending returns items left in sending since before cutoff to
// queued, due now. A process that crashed mid-delivery leaves such items.
func (q *Queue) ReclaimStaleSending(ctx context.Context, cutoff time.Time) (int64, error) {
	ok, err := q.ready()
	if !ok || err != nil {
		return 0, err
	}
	now := toMillis(nowUTC())
	res, err := q.store.execWithRetry(
		ctx,
		`UPDATE `+q.table+`
        SET status = ?, next_attempt_at = ?, updated_at = ?
        WHERE status = ? AND updated_at < ?`,
		StatusQueued,
		now,
		now,
		StatusSending,
		toMillis(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale %s: %w", q.table, err)
	}
	return res.RowsAffected()
}

// Stats counts items per status.
func (q *Queue) Stats(ctx context.Context) (map[Status]int, error) {
	ok, err := q.ready()
	if !ok || err != nil {
		return map[Status]int{}, err
	}
	ctx = ensureContext(ctx)
	rows, err := q.store.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM `+q.table+` GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("stats %s: %w", q.table, err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats %s: %w", q.table, err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

func (q *Queue) scan(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id            int64
		payload       sql.NullString
		blob          []byte
		metadata      sql.NullString
		status        string
		retryCount    int
		nextAttemptAt int64
		lastError     sql.NullString
		createdAt     int64
		updatedAt     int64
	)
	if err := scanner.Scan(&id, &payload, &blob, &metadata, &status, &retryCount, &nextAttemptAt, &lastError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	item := &Item{
		ID:            id,
		Kind:          q.kind,
		Blob:          blob,
		Status:        Status(status),
		RetryCount:    retryCount,
		NextAttemptAt: fromMillis(nextAttemptAt),
		LastError:     lastError.String,
		CreatedAt:     fromMillis(createdAt),
		UpdatedAt:     fromMillis(updatedAt),
	}
	if payload.Valid {
		item.Payload = json.RawMessage(payload.String)
	}
	if metadata.Valid {
		item.Metadata = json.RawMessage(metadata.String)
	}
	return item, nil
}
