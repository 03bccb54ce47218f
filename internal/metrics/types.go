package metrics

import "time"

// Config sizes the bounded buffers.
type Config struct {
	LatencyWindow int // Most recent latency samples kept for percentiles
	EventLogSize  int // Most recent lifecycle events kept
}

// DefaultConfig returns the standard window sizes.
func DefaultConfig() Config {
	return Config{
		LatencyWindow: 1000,
		EventLogSize:  100,
	}
}

// Event types recorded by the relay.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventJoin       = "join"
	EventReconnect  = "reconnect"
	EventSimulate   = "simulate"
	EventPersist    = "persist"
	EventLoad       = "load"
)

// Event is one entry of the bounded event log.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Details   string    `json:"details"`
}

// Snapshot is a point-in-time view of the collector.
type Snapshot struct {
	MessageCount   int64     `json:"message_count"`
	ErrorCount     int64     `json:"error_count"`
	ReconnectCount int64     `json:"reconnect_count"`
	MessagesPerSec float64   `json:"messages_per_sec"` // Lifetime average since StartedAt
	P50LatencyMs   float64   `json:"p50_latency_ms"`
	P95LatencyMs   float64   `json:"p95_latency_ms"`
	LatencySamples int       `json:"latency_samples"`
	EventCount     int       `json:"event_count"`
	StartedAt      time.Time `json:"started_at"`
	UptimeSeconds  float64   `json:"uptime_seconds"`
}
