package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"fieldsync/internal/broadcast"
	"fieldsync/internal/config"
	"fieldsync/internal/conflict"
	"fieldsync/internal/connectivity"
	"fieldsync/internal/daemon"
	"fieldsync/internal/delivery"
	"fieldsync/internal/ipc"
	"fieldsync/internal/logging"
	"fieldsync/internal/notifications"
	"fieldsync/internal/reconcile"
	"fieldsync/internal/remote"
	"fieldsync/internal/store"
	"fieldsync/internal/worker"
	"fieldsync/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the fieldsync daemon runtime loop and blocks until a signal
// arrives or cmdCtx is cancelled.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	sessionID := uuid.NewString()
	logger, err := logging.NewFromConfig(cfg, sessionID)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.DataDir, "fieldsync.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	notifier := notifications.NewService(cfg)

	st := store.OpenOrDegrade(cfg, logger)
	if !st.Available() {
		if err := notifier.Publish(signalCtx, notifications.EventStoreDegraded, notifications.Payload{
			"error": fmt.Sprint(st.Reason()),
		}); err != nil {
			logger.Debug("degraded store notification failed", logging.Error(err))
		}
	}

	client, err := openRemote(cfg, logger)
	if err != nil {
		st.Close()
		return err
	}

	channel := openChannel(cfg, logger)

	var (
		sender delivery.Sender
		prober connectivity.Prober
	)
	if client != nil {
		sender = client
		prober = client
	}
	w := worker.New(cfg, st, sender, channel, logger,
		worker.WithOutcomeHook(itemFailedHook(notifier, logger)))

	registry := worker.NewRegistry(w, logger)
	monitor := connectivity.NewMonitor(cfg, prober, logger)
	monitor.OnReconnect(func() {
		registry.Fire("reconnect")
	})

	manager := workflow.NewManager(cfg, st, channel, logger,
		workflow.WithWorker(w),
		workflow.WithRegistrar(registry),
		workflow.WithReconnectSource(monitor),
	)
	reconciler := reconcile.New(cfg, st, logger,
		reconcile.WithConflictHook(conflictHook(notifier, logger)))

	deps := daemon.Deps{
		Store:      st,
		Channel:    channel,
		Manager:    manager,
		Worker:     w,
		Registry:   registry,
		Monitor:    monitor,
		Reconciler: reconciler,
		Notifier:   notifier,
	}
	if client != nil {
		deps.Remote = client
		deps.Health = client
	}

	d, err := daemon.New(cfg, deps, logger)
	if err != nil {
		channel.Close()
		st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and local store access"),
			logging.String(logging.FieldImpact, "queued items are not delivered"),
		)
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("fieldsync daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func openRemote(cfg *config.Config, logger *slog.Logger) (*remote.Client, error) {
	if strings.TrimSpace(cfg.Remote.BaseURL) == "" {
		logger.Warn("no remote configured; items stay queued locally",
			logging.String(logging.FieldEventType, "remote_not_configured"),
			logging.String(logging.FieldErrorHint, "set remote.base_url in the config file"),
			logging.String(logging.FieldImpact, "nothing is delivered"),
		)
		return nil, nil
	}
	client, err := remote.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("remote client: %w", err)
	}
	return client, nil
}

// openChannel prefers the cross-process spool directory and falls back to an
// in-process hub.
func openChannel(cfg *config.Config, logger *slog.Logger) broadcast.Channel {
	if dir := strings.TrimSpace(cfg.Paths.BroadcastDir); dir != "" {
		channel, err := broadcast.OpenDir(dir, cfg.BroadcastRetention(), logger)
		if err == nil {
			return channel
		}
		logging.WarnWithContext(logger, "broadcast directory unavailable; events stay in-process", "broadcast_dir_unavailable",
			logging.Error(err),
			logging.String("dir", dir),
			logging.String(logging.FieldErrorHint, "check permissions on paths.broadcast_dir"),
			logging.String(logging.FieldImpact, "other processes miss sync events"),
		)
	}
	return broadcast.NewHub(logger)
}

func itemFailedHook(notifier notifications.Service, logger *slog.Logger) func(context.Context, delivery.Outcome) {
	return func(ctx context.Context, outcome delivery.Outcome) {
		if !outcome.Permanent || outcome.Item == nil {
			return
		}
		payload := notifications.Payload{
			"store":    outcome.Item.Kind.Collection(),
			"id":       outcome.Item.ID,
			"attempts": outcome.Item.RetryCount,
		}
		if outcome.Err != nil {
			payload["error"] = outcome.Err.Error()
		}
		if err := notifier.Publish(ctx, notifications.EventItemFailed, payload); err != nil {
			logger.Debug("item failed notification failed", logging.Error(err))
		}
	}
}

func conflictHook(notifier notifications.Service, logger *slog.Logger) reconcile.ConflictHook {
	return func(ctx context.Context, collection store.CacheCollection, id string, res conflict.Resolution) {
		if res.Ribbon == nil {
			return
		}
		payload := notifications.Payload{
			"collection": string(collection),
			"id":         id,
			"updatedBy":  res.Ribbon.UpdatedBy,
		}
		if err := notifier.Publish(ctx, notifications.EventConflict, payload); err != nil {
			logger.Debug("conflict notification failed", logging.Error(err))
		}
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
