package hub

import (
	"log/slog"
	"time"

	"github.com/rickgao/collab-relay/internal/metrics"
	"github.com/rickgao/collab-relay/internal/protocol"
	"github.com/rickgao/collab-relay/internal/room"
)

// Manager owns the connect/disconnect lifecycle of room connections.
type Manager struct {
	registry    *room.Registry
	metrics     *metrics.Collector
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewManager creates a Manager and its Broadcaster.
func NewManager(registry *room.Registry, collector *metrics.Collector, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		registry: registry,
		metrics:  collector,
		logger:   logger,
	}
	m.broadcaster = newBroadcaster(registry, collector, logger, m.Release)
	return m
}

// Broadcaster returns the fan-out component bound to this manager.
func (m *Manager) Broadcaster() *Broadcaster {
	return m.broadcaster
}

// Registry returns the registry this manager mutates.
func (m *Manager) Registry() *room.Registry {
	return m.registry
}

// Connect registers transport as clientID in roomID. A live connection that
// already holds clientID is replaced and closed.
func (m *Manager) Connect(transport room.Transport, roomID, clientID string) *room.Connection {
	conn := &room.Connection{
		RoomID:      roomID,
		ClientID:    clientID,
		Transport:   transport,
		ConnectedAt: time.Now().UTC(),
	}

	if stale := m.registry.AddConnection(conn); stale != nil {
		m.metrics.RecordReconnect()
		m.metrics.AddEvent(metrics.EventReconnect, roomID, clientID, "Stale connection replaced")
		m.logger.Info("replacing stale connection", "room", roomID, "client_id", clientID)
		if err := stale.Transport.Close(); err != nil {
			m.logger.Debug("close stale transport", "client_id", clientID, "error", err)
		}
	}

	m.metrics.AddEvent(metrics.EventConnect, roomID, clientID, "User connected")
	m.logger.Info("client connected",
		"room", roomID,
		"client_id", clientID,
		"clients", m.registry.ConnectionCount(roomID),
	)
	return conn
}

// Disconnect removes clientID from roomID whatever connection it holds.
// Unknown ids are a no-op; reports whether anything was removed.
func (m *Manager) Disconnect(roomID, clientID string) bool {
	conn, ok := m.registry.RemoveClient(roomID, clientID)
	if !ok {
		return false
	}
	if conn != nil {
		conn.Transport.Close()
	}
	m.finish(roomID, clientID)
	return true
}

// Release removes conn only while it is still the registered handle for its
// client id, so a replaced session can never evict its successor.
func (m *Manager) Release(conn *room.Connection) bool {
	if !m.registry.RemoveConnection(conn) {
		return false
	}
	conn.Transport.Close()
	m.finish(conn.RoomID, conn.ClientID)
	return true
}

func (m *Manager) finish(roomID, clientID string) {
	m.metrics.AddEvent(metrics.EventDisconnect, roomID, clientID, "User disconnected")
	m.logger.Info("client disconnected",
		"room", roomID,
		"client_id", clientID,
		"clients", m.registry.ConnectionCount(roomID),
	)

	if _, err := m.broadcaster.Broadcast(roomID, protocol.UserLeft{UserID: clientID}, clientID); err != nil {
		m.logger.Warn("announce departure", "room", roomID, "client_id", clientID, "error", err)
	}
}
