package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"fieldsync/internal/api"
	"fieldsync/internal/broadcast"
	"fieldsync/internal/config"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/logging"
	"fieldsync/internal/notifications"
	"fieldsync/internal/preflight"
	"fieldsync/internal/reconcile"
	"fieldsync/internal/services"
	"fieldsync/internal/store"
	"fieldsync/internal/worker"
	"fieldsync/internal/workflow"
)

// Deps holds the components a daemon coordinates. Store, Manager and Worker
// are required; the rest may be nil.
type Deps struct {
	Store      *store.Store
	Channel    broadcast.Channel
	Manager    *workflow.Manager
	Worker     *worker.Worker
	Registry   *worker.Registry
	Monitor    *connectivity.Monitor
	Reconciler *reconcile.Reconciler
	Remote     reconcile.Client
	Health     preflight.HealthChecker
	Notifier   notifications.Service
}

// Daemon coordinates the background sync services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   Deps
	queue  *api.QueueService

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Manager == nil || deps.Worker == nil {
		return nil, errors.New("daemon requires config, store, sync manager, and worker")
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(nil)
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		deps:     deps,
		queue:    api.NewQueueService(deps.Store),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the worker, the connectivity
// monitor, the sync orchestrator and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fieldsync daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.logPreflight(runCtx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.deps.Worker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("worker stopped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "worker_stopped"),
				logging.String(logging.FieldErrorHint, "restart the daemon"),
				logging.String(logging.FieldImpact, "queued items are not delivered"),
			)
		}
	}()

	if d.deps.Monitor != nil {
		d.deps.Monitor.Start(runCtx)
	}
	if err := d.deps.Manager.StartSync(runCtx); err != nil {
		d.shutdownLocked(cancel)
		return fmt.Errorf("start sync: %w", err)
	}
	if err := d.api.start(); err != nil {
		d.shutdownLocked(cancel)
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("fieldsync daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.Bool("store_available", d.deps.Store.Available()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	d.shutdownLocked(d.cancel)
	d.cancel = nil
	d.running.Store(false)
	d.logger.Info("fieldsync daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

func (d *Daemon) shutdownLocked(cancel context.CancelFunc) {
	d.deps.Manager.StopSync()
	if d.deps.Monitor != nil {
		d.deps.Monitor.Stop()
	}
	d.api.stop()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start reports another instance"),
		)
	}
}

func (d *Daemon) logPreflight(ctx context.Context) {
	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg, d.deps.Health)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported path or remote setting"),
			logging.String(logging.FieldImpact, "sync continues with reduced guarantees"),
		)
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.deps.Channel != nil {
		errs = append(errs, d.deps.Channel.Close())
	}
	errs = append(errs, d.deps.Store.Close())
	return errors.Join(errs...)
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the bound HTTP API address, or "" when the API is off.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		DatabasePath:   d.deps.Store.Path(),
		LockFilePath:   d.lockPath,
		StoreAvailable: d.deps.Store.Available(),
		RemoteURL:      strings.TrimSpace(d.cfg.Remote.BaseURL),
		Workflow:       api.FromStatusSummary(d.deps.Manager.Status(ctx)),
		Worker:         api.FromWorkerStats(d.deps.Worker.Stats()),
	}
	if !status.StoreAvailable {
		if reason := d.deps.Store.Reason(); reason != nil {
			status.StoreReason = reason.Error()
		}
	}
	if d.deps.Monitor != nil {
		status.Connectivity = api.FromSnapshot(d.deps.Monitor.Snapshot())
	} else {
		status.Connectivity = api.ConnectivityStatus{State: string(connectivity.StateUnknown)}
	}
	if d.deps.Registry != nil {
		status.ArmedTags = d.deps.Registry.Armed()
	}
	status.Preflight = append(preflight.RunAll(ctx, d.cfg, nil), preflight.CheckStore(d.deps.Store))
	return status
}

// ListQueue returns queue items filtered by kinds and statuses.
func (d *Daemon) ListQueue(ctx context.Context, kinds []store.Kind, statuses []store.Status) ([]api.QueueItem, error) {
	return d.queue.List(ctx, kinds, statuses...)
}

// DescribeItem returns one queue item or nil.
func (d *Daemon) DescribeItem(ctx context.Context, kind store.Kind, id int64) (*api.QueueItem, error) {
	return d.queue.Describe(ctx, kind, id)
}

// Enqueue stores a new item and schedules a sync for its queue.
func (d *Daemon) Enqueue(ctx context.Context, kind store.Kind, req api.EnqueueRequest) (api.EnqueueResponse, error) {
	resp, err := d.queue.Enqueue(ctx, kind, req)
	if err != nil {
		return resp, err
	}
	d.deps.Manager.ScheduleSync(ctx, kind.Collection())
	return resp, nil
}

// RetryFailed requeues failed items (a subset when ids are given) and
// schedules a sync.
func (d *Daemon) RetryFailed(ctx context.Context, kind store.Kind, ids []int64) (api.ItemsResult, error) {
	var (
		result api.ItemsResult
		err    error
	)
	if len(ids) == 0 {
		result.UpdatedCount, err = d.queue.Retry(ctx, kind, nil)
	} else {
		result, err = api.RetryFailedItems(ctx, d.queue, kind, ids)
	}
	if err != nil {
		return api.ItemsResult{}, err
	}
	if result.UpdatedCount > 0 {
		d.deps.Manager.ScheduleSync(ctx, kind.Collection())
	}
	return result, nil
}

// Discard deletes items whatever their status.
func (d *Daemon) Discard(ctx context.Context, kind store.Kind, ids []int64, force bool) (api.ItemsResult, error) {
	return api.DiscardItems(ctx, d.queue, kind, ids, force)
}

// ClearFailed removes failed items of the given kinds.
func (d *Daemon) ClearFailed(ctx context.Context, kinds []store.Kind) (int64, error) {
	return d.queue.ClearFailed(ctx, kinds)
}

// SyncNow asks the worker for a manual sync.
func (d *Daemon) SyncNow(ctx context.Context) api.SyncResponse {
	if err := d.deps.Manager.TriggerManualSync(ctx); err != nil {
		return api.SyncResponse{Triggered: false, Message: err.Error()}
	}
	return api.SyncResponse{Triggered: true, Message: "manual sync requested"}
}

// Ribbons lists undismissed ribbons.
func (d *Daemon) Ribbons(ctx context.Context) ([]api.Ribbon, error) {
	return d.queue.Ribbons(ctx)
}

// DismissRibbon clears one ribbon.
func (d *Daemon) DismissRibbon(ctx context.Context, collection store.CacheCollection, id string) (bool, error) {
	return d.queue.DismissRibbon(ctx, collection, id)
}

// Refresh pulls server copies of one cache through the conflict resolver.
func (d *Daemon) Refresh(ctx context.Context, collection store.CacheCollection) (api.RefreshResponse, error) {
	if d.deps.Reconciler == nil || d.deps.Remote == nil {
		return api.RefreshResponse{}, services.Wrap(services.ErrConfiguration, "daemon", "refresh", "remote not configured", nil)
	}
	summary, err := d.deps.Reconciler.Refresh(ctx, d.deps.Remote, collection)
	if err != nil {
		return api.RefreshResponse{}, err
	}
	return api.FromRefreshSummary(collection, summary), nil
}

// EditEntity records a local edit to a cached entity and pushes it when a
// remote is configured.
func (d *Daemon) EditEntity(ctx context.Context, collection store.CacheCollection, id string, data map[string]any) (map[string]any, error) {
	if d.deps.Reconciler == nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "edit", "cache reconciliation unavailable", nil)
	}
	res, err := d.deps.Reconciler.Edit(ctx, d.deps.Remote, collection, id, data)
	if err != nil {
		return nil, err
	}
	return res.Merged, nil
}

// SubscribeEvents forwards every sync event to listener until the returned
// function is called.
func (d *Daemon) SubscribeEvents(listener workflow.Listener) func() {
	return d.deps.Manager.OnSyncEvent(listener)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.deps.Notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
