package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rickgao/collab-relay/internal/connection"
	"github.com/rickgao/collab-relay/internal/session"
)

// handleWebSocket upgrades the request and runs a session on the handler
// goroutine until the client leaves or the server shuts down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	if !s.beginSession() {
		s.writeError(w, http.StatusServiceUnavailable, "server shutting down")
		return
	}
	defer s.sessions.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.logger.Debug("websocket upgrade failed", "room", roomID, "error", err)
		return
	}

	conn := connection.NewConn(ws, s.cfg.WebSocket, s.logger)
	sess := session.New(conn, roomID, clientID, s.manager, s.metrics, s.logger)
	if err := sess.Run(s.ctx); err != nil {
		s.logger.Warn("session ended with error",
			"room", roomID,
			"client_id", clientID,
			"remote", conn.RemoteAddr(),
			"error", err,
		)
	}
}
