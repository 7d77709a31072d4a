package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"fieldsync/internal/daemon"
	"fieldsync/internal/logging"
	"fieldsync/internal/store"
)

// ServiceName is the JSON-RPC service the daemon registers.
const ServiceName = "Fieldsync"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func parseKinds(values []string) ([]store.Kind, error) {
	kinds := make([]store.Kind, 0, len(values))
	for _, value := range values {
		kind, err := store.ParseKind(value)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	kinds, err := parseKinds(req.Kinds)
	if err != nil {
		return err
	}
	statuses := make([]store.Status, 0, len(req.Statuses))
	for _, value := range req.Statuses {
		status, ok := store.ParseStatus(value)
		if !ok {
			return fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	items, err := s.daemon.ListQueue(s.ctx, kinds, statuses)
	if err != nil {
		return err
	}
	resp.Items = items
	return nil
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	kind, err := store.ParseKind(req.Kind)
	if err != nil {
		return err
	}
	s.logger.Debug("queue retry requested", logging.String(logging.FieldStore, kind.Collection()), logging.Int("item_count", len(req.IDs)))
	result, err := s.daemon.RetryFailed(s.ctx, kind, req.IDs)
	if err != nil {
		return err
	}
	*resp = result
	s.logger.Info("queue items retried",
		logging.String(logging.FieldEventType, "queue_retry"),
		logging.String(logging.FieldStore, kind.Collection()),
		logging.Int64("updated_count", result.UpdatedCount))
	return nil
}

func (s *service) QueueDiscard(req QueueDiscardRequest, resp *QueueDiscardResponse) error {
	if len(req.IDs) == 0 {
		return errors.New("queue discard requires at least one id")
	}
	kind, err := store.ParseKind(req.Kind)
	if err != nil {
		return err
	}
	result, err := s.daemon.Discard(s.ctx, kind, req.IDs, req.Force)
	if err != nil {
		return err
	}
	*resp = result
	s.logger.Info("queue items discarded",
		logging.String(logging.FieldEventType, "queue_discard"),
		logging.String(logging.FieldStore, kind.Collection()),
		logging.Int64("removed_count", result.UpdatedCount))
	return nil
}

func (s *service) QueueClearFailed(req QueueClearFailedRequest, resp *QueueClearFailedResponse) error {
	kinds, err := parseKinds(req.Kinds)
	if err != nil {
		return err
	}
	removed, err := s.daemon.ClearFailed(s.ctx, kinds)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.logger.Info("queue failed items cleared",
		logging.String(logging.FieldEventType, "queue_clear_failed"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) Enqueue(req EnqueueRequest, resp *EnqueueResponse) error {
	kind, err := store.ParseKind(req.Kind)
	if err != nil {
		return err
	}
	result, err := s.daemon.Enqueue(s.ctx, kind, req.EnqueueRequest)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

func (s *service) SyncNow(_ SyncNowRequest, resp *SyncNowResponse) error {
	*resp = s.daemon.SyncNow(s.ctx)
	return nil
}

func (s *service) Ribbons(_ RibbonsRequest, resp *RibbonsResponse) error {
	ribbons, err := s.daemon.Ribbons(s.ctx)
	if err != nil {
		return err
	}
	resp.Ribbons = ribbons
	return nil
}

func (s *service) DismissRibbon(req DismissRibbonRequest, resp *DismissRibbonResponse) error {
	collection, err := store.ParseCacheCollection(req.Collection)
	if err != nil {
		return err
	}
	dismissed, err := s.daemon.DismissRibbon(s.ctx, collection, req.ID)
	if err != nil {
		return err
	}
	resp.Dismissed = dismissed
	return nil
}

func (s *service) Refresh(req RefreshRequest, resp *RefreshResponse) error {
	collection, err := store.ParseCacheCollection(req.Collection)
	if err != nil {
		return err
	}
	result, err := s.daemon.Refresh(s.ctx, collection)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
