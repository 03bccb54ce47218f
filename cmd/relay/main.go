// relay serves collaborative editing rooms over WebSocket and the admin REST API.
// Usage: go run ./cmd/relay --config configs/relay.example.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/collab-relay/internal/api"
	"github.com/rickgao/collab-relay/internal/config"
	"github.com/rickgao/collab-relay/internal/connection"
	"github.com/rickgao/collab-relay/internal/database"
	"github.com/rickgao/collab-relay/internal/hub"
	"github.com/rickgao/collab-relay/internal/metrics"
	"github.com/rickgao/collab-relay/internal/room"
	"github.com/rickgao/collab-relay/internal/store"
	"github.com/rickgao/collab-relay/internal/store/memory"
	"github.com/rickgao/collab-relay/internal/store/postgres"
	redisstore "github.com/rickgao/collab-relay/internal/store/redis"
	"github.com/rickgao/collab-relay/internal/store/sqlite"
	"github.com/rickgao/collab-relay/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and environment only when empty)")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	info := version.Get()
	logger.Info("starting relay",
		"version", info.Version,
		"commit", info.Commit,
		"addr", cfg.Server.Addr,
		"store", cfg.Store.Driver,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("relay exited", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	docs, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := docs.Close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	registry := room.NewRegistry(logger)
	collector := metrics.NewCollector(metrics.Config{
		LatencyWindow: cfg.Metrics.LatencyWindow,
		EventLogSize:  cfg.Metrics.EventLogSize,
	})
	manager := hub.NewManager(registry, collector, logger)

	relay := api.NewServer(api.Config{
		WebSocket: connection.Config{
			WriteTimeout:   cfg.WebSocket.WriteTimeout,
			PongWait:       cfg.WebSocket.PongWait,
			PingInterval:   cfg.WebSocket.PingInterval,
			MaxMessageSize: cfg.WebSocket.MaxMessageSize,
			SendBufferSize: cfg.WebSocket.SendBufferSize,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, manager, collector, docs, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           relay.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Hijacked WebSocket connections are not tracked by http.Server.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", "error", err)
		}
		if err := relay.Shutdown(shutdownCtx); err != nil {
			logger.Error("session shutdown", "error", err)
		}

		if cfg.Store.PersistOnShutdown {
			n, err := persistRooms(shutdownCtx, registry, docs)
			if err != nil {
				return fmt.Errorf("persist on shutdown: %w", err)
			}
			logger.Info("persisted room documents", "rooms", n)
		}
		return nil
	})

	return g.Wait()
}

// openStore builds the document store selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.DocumentStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil

	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s := postgres.New(pool, pool.Close, logger)
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		logger.Info("connected to postgres", "host", cfg.Postgres.Host, "db", cfg.Postgres.Name)
		return s, nil

	case config.DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		s, err := redisstore.New(redisstore.Config{
			Client:    client,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL,
		})
		if err != nil {
			client.Close()
			return nil, err
		}
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
		return s, nil

	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite", "path", cfg.SQLite.Path)
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// persistRooms saves every room holding a document and returns how many were written.
func persistRooms(ctx context.Context, registry *room.Registry, docs store.DocumentStore) (int, error) {
	now := time.Now()
	var recs []store.Record
	for _, s := range registry.ListRooms() {
		if s.DocSizeBytes == 0 {
			continue
		}
		data := registry.Document(s.ID)
		if len(data) == 0 {
			continue
		}
		recs = append(recs, store.Record{RoomID: s.ID, Data: data, UpdatedAt: now})
	}
	if err := store.SaveAll(ctx, docs, recs); err != nil {
		return 0, err
	}
	return len(recs), nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
