package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rickgao/collab-relay/internal/metrics"
	"github.com/rickgao/collab-relay/internal/protocol"
	"github.com/rickgao/collab-relay/internal/room"
	"github.com/rickgao/collab-relay/internal/store"
	"github.com/rickgao/collab-relay/internal/version"
)

// Query parameter defaults and limits.
const (
	DefaultEventLimit    = 50
	DefaultSimulateCount = 10
	MaxSimulateCount     = 1000

	healthCheckTimeout = 5 * time.Second
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, RootResponse{Message: "collab-relay: real-time collaboration relay API"})
}

// handleHealth reports unhealthy with 503 when the document store is
// configured and fails its ping.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Timestamp: now()}

	if p, ok := s.docs.(store.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("store health check failed", "error", err)
			resp.Status = "unhealthy"
			resp.Store = err.Error()
			s.writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Store = "ok"
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, version.Get())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()
	stats := s.registry.Stats()

	s.writeJSON(w, http.StatusOK, MetricsResponse{
		Snapshot:          snap,
		ActiveConnections: stats.Connections,
		RoomsActive:       stats.Rooms,
		TotalDocSizeBytes: stats.DocumentBytes,
		TotalMessages:     snap.MessageCount,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", DefaultEventLimit)
	if err != nil || limit < 1 {
		s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	s.writeJSON(w, http.StatusOK, s.metrics.Events(limit))
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	summaries := s.registry.ListRooms()
	out := make([]RoomDetail, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, s.roomDetail(sum))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleGetRoom never creates the room; unknown ids report zero values.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")
	s.writeJSON(w, http.StatusOK, s.roomDetail(s.registry.Summary(roomID)))
}

func (s *Server) handleRoomUsers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.users(r.PathValue("roomID")))
}

func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")

	doc := s.registry.Document(roomID)
	if len(doc) == 0 {
		s.writeJSON(w, http.StatusOK, PersistResponse{Error: "No document found"})
		return
	}
	if s.docs == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, PersistResponse{Error: "No document store configured"})
		return
	}

	rec := store.Record{RoomID: roomID, Data: doc, UpdatedAt: now()}
	if err := s.docs.Save(r.Context(), rec); err != nil {
		s.metrics.RecordError()
		s.logger.Error("persist failed", "room", roomID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, PersistResponse{Error: err.Error()})
		return
	}

	s.metrics.AddEvent(metrics.EventPersist, roomID, "", fmt.Sprintf("Persisted %d bytes", len(doc)))
	s.logger.Info("room persisted", "room", roomID, "size", len(doc))
	s.writeJSON(w, http.StatusOK, PersistResponse{Success: true, Size: len(doc)})
}

// handleLoad replaces the in-memory document with the persisted one and
// pushes it to every connected client as a sync.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")

	if s.docs == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, PersistResponse{Error: "No document store configured"})
		return
	}

	rec, err := s.docs.Load(r.Context(), roomID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSON(w, http.StatusOK, PersistResponse{Error: "No persisted document found"})
		return
	}
	if err != nil {
		s.metrics.RecordError()
		s.logger.Error("load failed", "room", roomID, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, PersistResponse{Error: err.Error()})
		return
	}

	s.registry.StoreDocument(roomID, rec.Data)
	if _, err := s.manager.Broadcaster().Broadcast(roomID, protocol.Sync{Data: rec.Data}, ""); err != nil {
		s.logger.Error("broadcast sync", "room", roomID, "error", err)
	}

	s.metrics.AddEvent(metrics.EventLoad, roomID, "", fmt.Sprintf("Loaded %d bytes", rec.Size()))
	s.logger.Info("room loaded", "room", roomID, "size", rec.Size())
	s.writeJSON(w, http.StatusOK, PersistResponse{Success: true, Size: rec.Size()})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")

	count, err := intQuery(r, "count", DefaultSimulateCount)
	if err != nil || count < 1 || count > MaxSimulateCount {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("count must be between 1 and %d", MaxSimulateCount))
		return
	}

	users := s.registry.AddSimulatedUsers(roomID, count)
	b := s.manager.Broadcaster()
	for _, u := range users {
		s.metrics.AddEvent(metrics.EventSimulate, roomID, u.ID, "Simulated user "+u.Name)
		if _, err := b.Broadcast(roomID, protocol.UserJoined{UserID: u.ID, Name: u.Name, Color: u.Color}, ""); err != nil {
			s.logger.Error("broadcast user_joined", "room", roomID, "error", err)
		}
	}

	s.logger.Info("simulated users added", "room", roomID, "count", len(users))
	s.writeJSON(w, http.StatusOK, SimulateResponse{
		Success:        true,
		SimulatedUsers: len(users),
		TotalUsers:     len(s.registry.Users(roomID)),
	})
}

func (s *Server) handleRemoveSimulated(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")

	removed := s.registry.RemoveSimulatedUsers(roomID)
	b := s.manager.Broadcaster()
	for _, id := range removed {
		if _, err := b.Broadcast(roomID, protocol.UserLeft{UserID: id}, ""); err != nil {
			s.logger.Error("broadcast user_left", "room", roomID, "error", err)
		}
	}

	s.writeJSON(w, http.StatusOK, RemoveSimulatedResponse{Success: true, Removed: len(removed)})
}

func (s *Server) roomDetail(sum room.Summary) RoomDetail {
	return RoomDetail{
		Summary: sum,
		Name:    sum.ID,
		Users:   s.users(sum.ID),
	}
}

func (s *Server) users(roomID string) []room.UserInfo {
	return s.registry.Users(roomID)
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
