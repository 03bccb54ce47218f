package connection

import (
	"errors"
	"time"

	"github.com/rickgao/collab-relay/internal/protocol"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrClosed          = errors.New("connection closed")
	ErrSendBufferFull  = errors.New("send buffer full")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Config configures an accepted server-side connection.
type Config struct {
	WriteTimeout   time.Duration // Write deadline per frame
	PongWait       time.Duration // Read deadline, extended by every frame or pong (0 = none)
	PingInterval   time.Duration // Keepalive ping period (0 = no pings)
	MaxMessageSize int64         // Largest inbound frame in bytes
	SendBufferSize int           // Outbound frames queued before Send fails
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   10 * time.Second,
		PongWait:       60 * time.Second,
		PingInterval:   54 * time.Second, // 9/10 of PongWait
		MaxMessageSize: 4 << 20,          // full document state is resent on every edit
		SendBufferSize: 256,
	}
}

// TimestampedFrame wraps a received frame with its local receive time.
type TimestampedFrame struct {
	Frame      protocol.Frame
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a dialing client.
type ClientConfig struct {
	URL          string        // Room URL (e.g., ws://localhost:8001/api/ws/demo?client_id=probe)
	Origin       string        // Origin header for relays that restrict origins (optional)
	PingTimeout  time.Duration // Max time without any inbound frame or pong before the connection is stale
	PingInterval time.Duration // Keepalive ping period
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Inbound and outbound frame buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1024,
	}
}
