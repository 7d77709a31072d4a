package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"fieldsync/internal/api"
	"fieldsync/internal/config"
	"fieldsync/internal/logging"
	"fieldsync/internal/services"
	"fieldsync/internal/store"
)

const maxBodyBytes = 32 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	srv.handler = srv.routes(strings.TrimSpace(cfg.Paths.APIToken))
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, authMiddleware(token, h))
	}
	handle("GET /api/status", s.handleStatus)
	handle("GET /api/queue", s.handleQueue)
	handle("GET /api/queue/{kind}/{id}", s.handleQueueItem)
	handle("POST /api/queue/{kind}", s.handleEnqueue)
	handle("POST /api/queue/{kind}/retry", s.handleRetryAll)
	handle("POST /api/queue/{kind}/{id}/retry", s.handleRetry)
	handle("DELETE /api/queue/{kind}/{id}", s.handleDiscard)
	handle("DELETE /api/queue/failed", s.handleClearFailed)
	handle("POST /api/sync", s.handleSync)
	handle("GET /api/ribbons", s.handleRibbons)
	handle("POST /api/ribbons/{collection}/{id}/dismiss", s.handleDismiss)
	handle("POST /api/cache/{collection}/refresh", s.handleRefresh)
	handle("PUT /api/cache/{collection}/{id}", s.handleEdit)
	handle("GET /api/events", s.handleEvents)
	return mux
}

func (s *apiServer) start() error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.listener = nil
	s.server = nil
}

func (s *apiServer) addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var kinds []store.Kind
	for _, value := range query["kind"] {
		kind, err := store.ParseKind(value)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		kinds = append(kinds, kind)
	}
	var statuses []store.Status
	for _, value := range query["status"] {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := store.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}

	items, err := s.daemon.ListQueue(r.Context(), kinds, statuses)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: items})
}

func (s *apiServer) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := s.itemPath(w, r)
	if !ok {
		return
	}
	item, err := s.daemon.DescribeItem(r.Context(), kind, id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if item == nil {
		s.writeError(w, http.StatusNotFound, "queue item not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueItemResponse{Item: *item})
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	kind, err := store.ParseKind(r.PathValue("kind"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req api.EnqueueRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.daemon.Enqueue(r.Context(), kind, req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if !resp.Durable {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, resp)
}

func (s *apiServer) handleRetryAll(w http.ResponseWriter, r *http.Request) {
	kind, err := store.ParseKind(r.PathValue("kind"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.daemon.RetryFailed(r.Context(), kind, nil)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := s.itemPath(w, r)
	if !ok {
		return
	}
	result, err := s.daemon.RetryFailed(r.Context(), kind, []int64{id})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleDiscard(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := s.itemPath(w, r)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	result, err := s.daemon.Discard(r.Context(), kind, []int64{id}, force)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleClearFailed(w http.ResponseWriter, r *http.Request) {
	count, err := s.daemon.ClearFailed(r.Context(), nil)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CountResponse{Count: count})
}

func (s *apiServer) handleSync(w http.ResponseWriter, r *http.Request) {
	resp := s.daemon.SyncNow(r.Context())
	status := http.StatusAccepted
	if !resp.Triggered {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

func (s *apiServer) handleRibbons(w http.ResponseWriter, r *http.Request) {
	ribbons, err := s.daemon.Ribbons(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RibbonListResponse{Ribbons: ribbons})
}

func (s *apiServer) handleDismiss(w http.ResponseWriter, r *http.Request) {
	collection, err := store.ParseCacheCollection(r.PathValue("collection"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dismissed, err := s.daemon.DismissRibbon(r.Context(), collection, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DismissResponse{Dismissed: dismissed})
}

func (s *apiServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	collection, err := store.ParseCacheCollection(r.PathValue("collection"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.daemon.Refresh(r.Context(), collection)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleEdit(w http.ResponseWriter, r *http.Request) {
	collection, err := store.ParseCacheCollection(r.PathValue("collection"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var data map[string]any
	if !s.decode(w, r, &data) {
		return
	}
	merged, err := s.daemon.EditEntity(r.Context(), collection, r.PathValue("id"), data)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, merged)
}

func (s *apiServer) itemPath(w http.ResponseWriter, r *http.Request) (store.Kind, int64, bool) {
	kind, err := store.ParseKind(r.PathValue("kind"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return "", 0, false
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid queue item id")
		return "", 0, false
	}
	return kind, id, true
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.UseNumber()
	if err := decoder.Decode(dest); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConfiguration):
		status = http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTransient), errors.Is(err, services.ErrTimeout):
		status = http.StatusBadGateway
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
