package room

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/collab-relay/internal/protocol"
)

// Room is the state of one collaboration session.
type Room struct {
	id        string
	createdAt time.Time

	mu          sync.RWMutex
	document    []byte
	connections map[string]*Connection
	presence    map[string]UserInfo
}

func newRoom(id string) *Room {
	return &Room{
		id:          id,
		createdAt:   time.Now().UTC(),
		connections: make(map[string]*Connection),
		presence:    make(map[string]UserInfo),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

func (r *Room) summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Summary{
		ID:           r.id,
		UserCount:    len(r.connections),
		DocSizeBytes: len(r.document),
		CreatedAt:    r.createdAt,
	}
}

// Registry maps room ids to room state.
type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		rooms:  make(map[string]*Room),
	}
}

// GetOrCreate returns the room for roomID, creating it on first reference.
// Concurrent first access yields a single room.
func (g *Registry) GetOrCreate(roomID string) *Room {
	if r, ok := g.lookup(roomID); ok {
		return r
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.rooms[roomID]; ok {
		return r
	}
	r := newRoom(roomID)
	g.rooms[roomID] = r
	g.logger.Debug("room created", "room", roomID)
	return r
}

func (g *Registry) lookup(roomID string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[roomID]
	return r, ok
}

// StoreDocument replaces the room document. No merge, no version check.
func (g *Registry) StoreDocument(roomID string, blob []byte) {
	r := g.GetOrCreate(roomID)
	doc := make([]byte, len(blob))
	copy(doc, blob)

	r.mu.Lock()
	r.document = doc
	r.mu.Unlock()
}

// Document returns a copy of the room document, empty if none was stored.
func (g *Registry) Document(roomID string) []byte {
	r, ok := g.lookup(roomID)
	if !ok {
		return []byte{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	doc := make([]byte, len(r.document))
	copy(doc, r.document)
	return doc
}

// AddConnection registers conn under its client id. A live entry with the
// same id is replaced and returned so the caller can close it.
func (g *Registry) AddConnection(conn *Connection) (replaced *Connection) {
	r := g.GetOrCreate(conn.RoomID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.connections[conn.ClientID]; ok && prev != conn {
		replaced = prev
	}
	r.connections[conn.ClientID] = conn
	return replaced
}

// RemoveConnection unregisters conn and its presence, but only while conn is
// still the registered handle for its client id. Reports whether it did.
func (g *Registry) RemoveConnection(conn *Connection) bool {
	r, ok := g.lookup(conn.RoomID)
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connections[conn.ClientID] != conn {
		return false
	}
	delete(r.connections, conn.ClientID)
	delete(r.presence, conn.ClientID)
	return true
}

// RemoveClient unregisters whatever connection and presence clientID holds.
// Reports whether anything was removed.
func (g *Registry) RemoveClient(roomID, clientID string) (*Connection, bool) {
	r, ok := g.lookup(roomID)
	if !ok {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	conn, hadConn := r.connections[clientID]
	_, hadUser := r.presence[clientID]
	delete(r.connections, clientID)
	delete(r.presence, clientID)
	return conn, hadConn || hadUser
}

// Connections snapshots the room's connections, skipping excludeID.
func (g *Registry) Connections(roomID, excludeID string) []*Connection {
	r, ok := g.lookup(roomID)
	if !ok {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Connection, 0, len(r.connections))
	for id, c := range r.connections {
		if id == excludeID {
			continue
		}
		conns = append(conns, c)
	}
	return conns
}

// ConnectionCount returns the number of live connections in the room.
func (g *Registry) ConnectionCount(roomID string) int {
	r, ok := g.lookup(roomID)
	if !ok {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Join writes the presence record for user.ID, replacing any previous one.
func (g *Registry) Join(roomID string, user UserInfo) {
	r := g.GetOrCreate(roomID)

	r.mu.Lock()
	r.presence[user.ID] = user
	r.mu.Unlock()
}

// User returns the presence record of clientID.
func (g *Registry) User(roomID, clientID string) (UserInfo, bool) {
	r, ok := g.lookup(roomID)
	if !ok {
		return UserInfo{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.presence[clientID]
	return u, ok
}

// UpdateCursor sets the caret of a joined client and returns the updated record.
func (g *Registry) UpdateCursor(roomID, clientID string, position *int) (UserInfo, bool) {
	return g.updateUser(roomID, clientID, func(u *UserInfo) {
		u.CursorPosition = copyInt(position)
	})
}

// UpdateSelection sets the selection of a joined client and returns the updated record.
func (g *Registry) UpdateSelection(roomID, clientID string, rng *protocol.Range) (UserInfo, bool) {
	return g.updateUser(roomID, clientID, func(u *UserInfo) {
		if rng == nil {
			u.Selection = nil
			return
		}
		sel := *rng
		u.Selection = &sel
	})
}

func (g *Registry) updateUser(roomID, clientID string, mutate func(*UserInfo)) (UserInfo, bool) {
	r, ok := g.lookup(roomID)
	if !ok {
		return UserInfo{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.presence[clientID]
	if !ok {
		return UserInfo{}, false
	}
	mutate(&u)
	r.presence[clientID] = u
	return u, true
}

// Presence lists the room's presence records ordered by id, skipping excludeID.
func (g *Registry) Presence(roomID, excludeID string) []UserInfo {
	r, ok := g.lookup(roomID)
	if !ok {
		return []UserInfo{}
	}

	r.mu.RLock()
	users := make([]UserInfo, 0, len(r.presence))
	for id, u := range r.presence {
		if id == excludeID {
			continue
		}
		users = append(users, u)
	}
	r.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// Users lists every presence record of the room.
func (g *Registry) Users(roomID string) []UserInfo {
	return g.Presence(roomID, "")
}

// Summary projects one room. Unknown rooms report zero values.
func (g *Registry) Summary(roomID string) Summary {
	r, ok := g.lookup(roomID)
	if !ok {
		return Summary{ID: roomID}
	}
	return r.summary()
}

// ListRooms projects every room ordered by id.
func (g *Registry) ListRooms() []Summary {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.RUnlock()

	out := make([]Summary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns registry-wide counts.
func (g *Registry) Stats() Stats {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.RUnlock()

	stats := Stats{Rooms: len(rooms)}
	for _, r := range rooms {
		r.mu.RLock()
		stats.Connections += len(r.connections)
		stats.Users += len(r.presence)
		stats.DocumentBytes += len(r.document)
		r.mu.RUnlock()
	}
	return stats
}

var simulatedColors = []string{"#F43F5E", "#10B981", "#3B82F6", "#F59E0B", "#8B5CF6", "#EC4899"}

// AddSimulatedUsers inserts count synthetic presence records for load testing.
func (g *Registry) AddSimulatedUsers(roomID string, count int) []UserInfo {
	if count <= 0 {
		return []UserInfo{}
	}
	r := g.GetOrCreate(roomID)

	users := make([]UserInfo, count)
	for i := range users {
		pos := (i * 37) % 500
		users[i] = UserInfo{
			ID:             "sim-" + uuid.NewString()[:8],
			Name:           fmt.Sprintf("SimUser-%d", i+1),
			Color:          simulatedColors[i%len(simulatedColors)],
			CursorPosition: &pos,
			Simulated:      true,
		}
	}

	r.mu.Lock()
	for _, u := range users {
		r.presence[u.ID] = u
	}
	r.mu.Unlock()
	return users
}

// RemoveSimulatedUsers deletes every synthetic presence record and returns their ids.
func (g *Registry) RemoveSimulatedUsers(roomID string) []string {
	r, ok := g.lookup(roomID)
	if !ok {
		return []string{}
	}

	r.mu.Lock()
	removed := make([]string, 0)
	for id, u := range r.presence {
		if u.Simulated {
			delete(r.presence, id)
			removed = append(removed, id)
		}
	}
	r.mu.Unlock()

	sort.Strings(removed)
	return removed
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
