package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/collab-relay/internal/connection"
	"github.com/rickgao/collab-relay/internal/hub"
	"github.com/rickgao/collab-relay/internal/metrics"
	"github.com/rickgao/collab-relay/internal/room"
	"github.com/rickgao/collab-relay/internal/store"
)

// Config holds HTTP-facing settings for the server.
type Config struct {
	WebSocket      connection.Config
	AllowedOrigins []string
}

// Server routes REST and WebSocket requests to the relay core.
type Server struct {
	cfg      Config
	manager  *hub.Manager
	registry *room.Registry
	metrics  *metrics.Collector
	docs     store.DocumentStore
	logger   *slog.Logger

	upgrader websocket.Upgrader

	// Sessions outlive http.Server.Shutdown because their sockets are hijacked.
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

// NewServer creates a server. docs may be nil, in which case persist and
// load report failure.
func NewServer(cfg Config, manager *hub.Manager, collector *metrics.Collector, docs store.DocumentStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		manager:  manager,
		registry: manager.Registry(),
		metrics:  collector,
		docs:     docs,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ws/{roomID}", s.handleWebSocket)

	mux.HandleFunc("GET /api/{$}", s.handleRoot)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/metrics/events", s.handleEvents)

	mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	mux.HandleFunc("GET /api/rooms/{roomID}", s.handleGetRoom)
	mux.HandleFunc("GET /api/rooms/{roomID}/users", s.handleRoomUsers)
	mux.HandleFunc("POST /api/rooms/{roomID}/persist", s.handlePersist)
	mux.HandleFunc("GET /api/rooms/{roomID}/load", s.handleLoad)

	mux.HandleFunc("POST /api/simulate/users/{roomID}", s.handleSimulate)
	mux.HandleFunc("DELETE /api/simulate/users/{roomID}", s.handleRemoveSimulated)

	return s.cors(mux)
}

// Shutdown cancels every running session and waits for them to release
// their connections, or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginSession registers a session unless shutdown has started.
func (s *Server) beginSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions.Add(1)
	return true
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.originAllowed(origin) {
		return true
	}
	s.logger.Warn("websocket origin rejected", "origin", origin)
	return false
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// cors answers preflight requests and sets Access-Control headers for
// allowed origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", r.Header.Get("Access-Control-Request-Headers"))
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

func now() time.Time {
	return time.Now().UTC()
}
