package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ineyio/flowgate"
)

const (
	wsWriteWait    = 10 * time.Second
	wsFirstMessage = 30 * time.Second
)

// wsSink writes each canonical event as one text frame.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(e flowgate.StreamEvent) error {
	payload, err := e.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: %v", flowgate.ErrSinkClosed, err)
	}
	return nil
}

func (s *Server) newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range s.config.CORSOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// handleWebSocket reads one analyze request from the first text frame and
// streams the canonical events back, ending with [DONE].
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.config.MaxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsFirstMessage))

	sink := &wsSink{conn: conn}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	var req AnalyzeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		_ = flowgate.FailStream(r.Context(), sink, flowgate.InvalidInput("malformed request: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		_ = flowgate.FailStream(r.Context(), sink, err)
		return
	}
	target, err := s.gateway.Resolve(req.Provider)
	if err != nil {
		_ = flowgate.FailStream(r.Context(), sink, err)
		return
	}

	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)
	ctx = WithRequestID(ctx, requestIDFrom(r))

	// The read side only watches for the client going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel(fmt.Errorf("%w: client disconnected", flowgate.ErrSinkClosed))
				return
			}
		}
	}()

	if err := s.gateway.Run(ctx, target, req, sink); err != nil {
		s.logger.Debug().Err(err).Str("provider", target.ID).Msg("websocket stream ended with error")
	}

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
