package api

import (
	"time"

	"github.com/rickgao/collab-relay/internal/metrics"
	"github.com/rickgao/collab-relay/internal/room"
)

// RootResponse is returned by GET /api/.
type RootResponse struct {
	Message string `json:"message"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Store     string    `json:"store,omitempty"`
}

// MetricsResponse is the collector snapshot plus registry-wide gauges.
type MetricsResponse struct {
	metrics.Snapshot
	ActiveConnections int   `json:"active_connections"`
	RoomsActive       int   `json:"rooms_active"`
	TotalDocSizeBytes int   `json:"total_doc_size_bytes"`
	TotalMessages     int64 `json:"total_messages"`
}

// RoomDetail is a room summary with its current presence list.
type RoomDetail struct {
	room.Summary
	Name  string          `json:"name"`
	Users []room.UserInfo `json:"users"`
}

// PersistResponse reports the outcome of a persist or load call.
type PersistResponse struct {
	Success bool   `json:"success"`
	Size    int    `json:"size,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SimulateResponse is returned when simulated users are added.
type SimulateResponse struct {
	Success        bool `json:"success"`
	SimulatedUsers int  `json:"simulated_users"`
	TotalUsers     int  `json:"total_users"`
}

// RemoveSimulatedResponse is returned when simulated users are removed.
type RemoveSimulatedResponse struct {
	Success bool `json:"success"`
	Removed int  `json:"removed"`
}

// ErrorResponse is the body of every 4xx/5xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
