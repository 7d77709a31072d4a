package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"fieldsync/internal/broadcast"
	"fieldsync/internal/logging"
)

const (
	eventBuffer       = 64
	eventWriteTimeout = 5 * time.Second
)

// handleEvents streams sync events to a websocket client until it
// disconnects. A client that falls behind by more than eventBuffer messages
// is disconnected.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "websocket_upgrade_failed"),
			logging.String(logging.FieldErrorHint, "client must speak the websocket protocol"),
		)
		return
	}
	defer conn.CloseNow()

	events := make(chan broadcast.Message, eventBuffer)
	overflow := make(chan struct{}, 1)
	unsubscribe := s.daemon.SubscribeEvents(func(msg broadcast.Message) {
		select {
		case events <- msg:
		default:
			select {
			case overflow <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	// Clients never send; CloseRead cancels ctx when they go away.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case <-overflow:
			_ = conn.Close(websocket.StatusPolicyViolation, "event stream overflow")
			return
		case msg := <-events:
			if err := writeEvent(ctx, conn, msg); err != nil {
				s.logger.Debug("websocket write failed", logging.Error(err))
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, msg broadcast.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
