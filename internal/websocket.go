package internal

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentdeck/agentdeck/internal/hub"
	"github.com/agentdeck/agentdeck/pkg/panicerr"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Any origin may open the chat socket.
		return true
	},
}

// handleChatSocket upgrades the connection and registers it as an observer.
// The hub's welcome event is already queued when the write pump starts, so
// it is always the first frame on the wire.
func (s *Server) handleChatSocket(runCtx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "error", err)
			return
		}

		obs := s.hub.Register()
		slog.Info("client connected", "observer", obs.ID(), "connections", s.hub.Len())

		panicerr.Go(func() {
			s.writePump(conn, obs)
		})
		s.readPump(runCtx, conn, obs)
	}
}

// writePump drains the observer's frame queue onto the socket, one JSON
// message per websocket frame, and keeps the connection alive with pings.
func (s *Server) writePump(conn *websocket.Conn, obs *hub.Observer) {
	ticker := time.NewTicker(s.pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-obs.Frames():
			conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if !ok {
				// The hub dropped this observer.
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.hub.Unregister(obs.ID())
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.hub.Unregister(obs.ID())
				return
			}
		}
	}
}

// readPump relays inbound frames to the message router and owns the teardown
// of the read side. A frame the router cannot decode ends the connection.
func (s *Server) readPump(runCtx context.Context, conn *websocket.Conn, obs *hub.Observer) {
	defer func() {
		s.hub.Unregister(obs.ID())
		conn.Close()
		slog.Info("client disconnected", "observer", obs.ID(), "connections", s.hub.Len())
	}()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read failed", "observer", obs.ID(), "error", err)
			}
			return
		}
		if err := s.router.Handle(runCtx, obs, data); err != nil {
			slog.Warn("dropping client after malformed message", "observer", obs.ID(), "error", err)
			return
		}
		// Handle runs task submissions inline on this goroutine, so no
		// pongs were read while a task was in flight and the deadline may
		// already have lapsed. Re-arm it before the next read.
		conn.SetReadDeadline(time.Now().Add(s.pongWait))
	}
}
