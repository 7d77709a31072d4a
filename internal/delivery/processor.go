package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fieldsync/internal/logging"
	"fieldsync/internal/services"
	"fieldsync/internal/store"
)

// Result counts what a pass did. Processed equals Succeeded plus Failed.
type Result struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// Deferred counts queued items whose backoff had not elapsed.
	Deferred int `json:"deferred"`
}

// Add accumulates another pass into r.
func (r *Result) Add(other Result) {
	r.Processed += other.Processed
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Deferred += other.Deferred
}

// ErrSendPanicked marks a Sender that panicked instead of returning.
var ErrSendPanicked = errors.New("sender panicked")

// ProcessQueue attempts every due item held by items, in the order the store
// returns them. Items that are not due, sending or failed are left untouched.
func ProcessQueue(ctx context.Context, items ItemStore, send Sender, opts Options) Result {
	opts = opts.normalized()
	logger := logging.WithContext(ctx, logging.NewComponentLogger(opts.Logger, "delivery"))

	var result Result
	if items == nil || send == nil {
		return result
	}

	all, err := items.GetAllQueued(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "read queue failed; pass skipped", "queue_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "queued items wait for the next sync"),
		)
		return result
	}

	now := opts.Clock()
	for _, item := range all {
		if item == nil || item.Status != store.StatusQueued {
			continue
		}
		if !item.IsDue(now) {
			result.Deferred++
			continue
		}
		if ctx.Err() != nil {
			logger.Debug("pass interrupted", logging.Error(ctx.Err()))
			break
		}
		result.Processed++
		if attempt(ctx, items, send, opts, logger, item) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	if result.Processed > 0 {
		logger.Info("delivery pass complete",
			logging.String(logging.FieldEventType, "delivery_pass"),
			logging.Int("processed", result.Processed),
			logging.Int("succeeded", result.Succeeded),
			logging.Int("failed", result.Failed),
			logging.Int("deferred", result.Deferred),
		)
	}
	return result
}

func attempt(ctx context.Context, items ItemStore, send Sender, opts Options, base *slog.Logger, item *store.Item) bool {
	itemCtx := services.WithItemID(services.WithStore(ctx, item.Kind.Collection()), item.ID)
	logger := logging.WithContext(itemCtx, base)

	item.Status = store.StatusSending
	if err := items.Update(itemCtx, item); err != nil {
		logging.ErrorWithContext(logger, "mark sending failed; item left queued", "item_state_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
		)
		item.Status = store.StatusQueued
		emit(opts, Outcome{Item: item, Err: err})
		return false
	}

	sendErr := safeSend(itemCtx, send, item)
	if sendErr == nil {
		if err := items.Remove(itemCtx, item.ID); err != nil {
			// The remote accepted the item; a leftover row is reclaimed and
			// resent later, which an idempotent sender absorbs.
			logging.WarnWithContext(logger, "remove delivered item failed", "item_remove_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
				logging.String(logging.FieldImpact, "item may be delivered again"),
			)
		}
		item.Status = store.StatusDone
		logger.Info("item delivered",
			logging.String(logging.FieldEventType, "item_delivered"),
			logging.Int("attempt", item.RetryCount+1),
		)
		emit(opts, Outcome{Item: item})
		return true
	}

	item.RetryCount++
	item.LastError = strings.TrimSpace(sendErr.Error())
	permanent := item.RetryCount > opts.MaxRetries
	if permanent {
		item.Status = store.StatusFailed
	} else {
		item.Status = store.StatusQueued
		item.NextAttemptAt = nextAttempt(opts.Clock(), item.RetryCount, opts.BaseDelay, opts.Jitter, opts.RandomJitter)
	}
	if err := items.Update(itemCtx, item); err != nil {
		logging.ErrorWithContext(logger, "persist delivery failure failed", "item_state_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
		)
	}

	if permanent {
		logging.ErrorWithContext(logger, "item failed permanently", "item_failed",
			logging.Error(sendErr),
			logging.Alert("item_failed"),
			logging.String(logging.FieldErrorHint, "retry or discard the item once the cause is fixed"),
			logging.Int("attempts", item.RetryCount),
		)
	} else {
		logger.Warn("delivery attempt failed; retry scheduled",
			logging.Error(sendErr),
			logging.String(logging.FieldEventType, "item_retry_scheduled"),
			logging.String(logging.FieldErrorHint, services.ErrorHint(sendErr)),
			logging.String(logging.FieldImpact, "item stays queued"),
			logging.Int("retry_count", item.RetryCount),
			logging.Time("next_attempt_at", item.NextAttemptAt),
		)
	}
	emit(opts, Outcome{Item: item, Err: sendErr, Permanent: permanent})
	return false
}

func safeSend(ctx context.Context, send Sender, item *store.Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSendPanicked, r)
		}
	}()
	return send.Send(ctx, item)
}

func emit(opts Options, outcome Outcome) {
	if opts.OnOutcome == nil {
		return
	}
	snapshot := *outcome.Item
	outcome.Item = &snapshot
	opts.OnOutcome(outcome)
}
