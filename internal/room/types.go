package room

import (
	"time"

	"github.com/rickgao/collab-relay/internal/protocol"
)

// UserInfo is the presence record of one participant.
type UserInfo = protocol.UserInfo

// Transport is the write side of one client channel.
type Transport interface {
	// Send delivers one frame. It must not block on a slow peer.
	Send(frame protocol.Frame) error

	// Close tears the channel down. Safe to call more than once.
	Close() error
}

// Connection binds a transport to the room and client id it serves.
// The session that accepted the transport owns it; the registry only
// references it for fan-out.
type Connection struct {
	RoomID      string
	ClientID    string
	Transport   Transport
	ConnectedAt time.Time
}

// Summary is the read-only projection of a room.
type Summary struct {
	ID           string    `json:"id"`
	UserCount    int       `json:"user_count"`
	DocSizeBytes int       `json:"doc_size_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

// Stats aggregates registry-wide counts.
type Stats struct {
	Rooms         int `json:"rooms"`
	Connections   int `json:"connections"`
	Users         int `json:"users"`
	DocumentBytes int `json:"document_bytes"`
}
