// relayprobe joins a relay room, prints every frame it receives and measures
// ping round trips. With --stats it polls the admin API instead.
// Usage: go run ./cmd/relayprobe --url ws://localhost:8001/api/ws --room demo
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/collab-relay/internal/api"
	"github.com/rickgao/collab-relay/internal/connection"
	"github.com/rickgao/collab-relay/internal/protocol"
)

type options struct {
	wsURL        string
	apiURL       string
	room         string
	name         string
	clientID     string
	origin       string
	duration     time.Duration
	pingInterval time.Duration
	stats        bool
	verbose      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.wsURL, "url", "ws://localhost:8001/api/ws", "relay WebSocket base URL")
	flag.StringVar(&opts.apiURL, "api", "http://localhost:8001/api", "relay REST base URL (stats mode)")
	flag.StringVar(&opts.room, "room", "demo", "room to join")
	flag.StringVar(&opts.name, "name", "probe", "display name sent on join")
	flag.StringVar(&opts.clientID, "client-id", "", "client id (random when empty)")
	flag.StringVar(&opts.origin, "origin", "", "Origin header for relays with allowed_origins set")
	flag.DurationVar(&opts.duration, "duration", 0, "stop after this long (0 = until Ctrl+C)")
	flag.DurationVar(&opts.pingInterval, "ping", 5*time.Second, "application ping interval")
	flag.BoolVar(&opts.stats, "stats", false, "poll /metrics and /rooms instead of joining")
	flag.BoolVar(&opts.verbose, "verbose", false, "print full frame payloads")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	var err error
	if opts.stats {
		err = pollStats(ctx, opts, logger)
	} else {
		err = probe(ctx, opts, logger)
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("probe failed", "error", err)
		os.Exit(1)
	}
	logger.Info("probe stopped")
}

func probe(ctx context.Context, opts options, logger *slog.Logger) error {
	if opts.clientID == "" {
		opts.clientID = uuid.NewString()
	}

	target, err := roomURL(opts.wsURL, opts.room, opts.clientID)
	if err != nil {
		return err
	}

	cfg := connection.DefaultClientConfig()
	cfg.URL = target
	cfg.Origin = opts.origin
	client := connection.NewClient(cfg, logger)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", target, err)
	}
	defer client.Close()

	logger.Info("connected", "url", target, "client_id", opts.clientID)

	if err := sendJSON(client, map[string]any{"type": "join", "name": opts.name}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(opts.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				ping := map[string]any{"type": "ping", "timestamp": time.Now().UnixMilli()}
				if err := sendJSON(client, ping); err != nil {
					return fmt.Errorf("send ping: %w", err)
				}
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case err := <-client.Errors():
				return fmt.Errorf("connection: %w", err)
			case f := <-client.Frames():
				printFrame(f, opts.verbose)
			}
		}
	})

	return g.Wait()
}

func pollStats(ctx context.Context, opts options, logger *slog.Logger) error {
	client := api.NewClient(opts.apiURL, api.WithLogger(logger))

	ticker := time.NewTicker(opts.pingInterval)
	defer ticker.Stop()

	for {
		m, err := client.Metrics(ctx)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		rooms, err := client.Rooms(ctx)
		if err != nil {
			return fmt.Errorf("rooms: %w", err)
		}

		logger.Info("stats",
			"connections", m.ActiveConnections,
			"rooms", m.RoomsActive,
			"messages_per_sec", m.MessagesPerSec,
			"p95_ms", m.P95LatencyMs,
			"errors", m.ErrorCount,
			"doc_bytes", m.TotalDocSizeBytes,
		)
		for _, r := range rooms {
			fmt.Printf("[ROOM] id=%s users=%d doc_bytes=%d\n", r.ID, r.UserCount, r.DocSizeBytes)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// roomURL appends the room id and client_id query to the WebSocket base URL.
func roomURL(base, roomID, clientID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u = u.JoinPath(roomID)
	q := u.Query()
	q.Set("client_id", clientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sendJSON(client connection.Client, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Send(protocol.Frame{Kind: protocol.TextFrame, Data: data})
}

// serverFrame holds the fields the probe prints from any server message.
type serverFrame struct {
	Type      string          `json:"type"`
	UserID    string          `json:"userId"`
	Name      string          `json:"name"`
	From      string          `json:"from"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Timestamp json.RawMessage `json:"timestamp"`
	Users     []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"users"`
}

func printFrame(f connection.TimestampedFrame, verbose bool) {
	if f.Frame.Kind == protocol.BinaryFrame {
		fmt.Printf("[BINARY] bytes=%d\n", len(f.Frame.Data))
		return
	}
	if verbose {
		fmt.Printf("[RAW] %s\n", f.Frame.Data)
	}
	fmt.Println(describe(f.Frame.Data, f.ReceivedAt))
}

// describe renders one text frame as a single console line.
func describe(data []byte, receivedAt time.Time) string {
	var msg serverFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Sprintf("[INVALID] %v", err)
	}

	tag := "[" + strings.ToUpper(msg.Type) + "]"
	switch msg.Type {
	case "pong":
		var sent int64
		if err := json.Unmarshal(msg.Timestamp, &sent); err != nil {
			return tag + " timestamp=" + string(msg.Timestamp)
		}
		rtt := receivedAt.Sub(time.UnixMilli(sent))
		return fmt.Sprintf("%s rtt=%s", tag, rtt.Round(time.Microsecond))
	case "sync":
		return fmt.Sprintf("%s doc_bytes=%d", tag, docBytes(msg.Data))
	case "update":
		return fmt.Sprintf("%s from=%s doc_bytes=%d", tag, msg.From, docBytes(msg.Data))
	case "users_list":
		names := make([]string, 0, len(msg.Users))
		for _, u := range msg.Users {
			names = append(names, u.Name)
		}
		return fmt.Sprintf("%s count=%d names=%s", tag, len(msg.Users), strings.Join(names, ","))
	case "user_joined", "user_left", "cursor", "selection", "awareness":
		return fmt.Sprintf("%s user=%s name=%s", tag, msg.UserID, msg.Name)
	case "error":
		return fmt.Sprintf("%s message=%q", tag, msg.Message)
	default:
		return fmt.Sprintf("%s %s", tag, data)
	}
}

// docBytes is the decoded size of a hex document field.
func docBytes(raw json.RawMessage) int {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	return len(s) / 2
}
