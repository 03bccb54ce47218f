package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/collab-relay/internal/metrics"
	"github.com/rickgao/collab-relay/internal/room"
	"github.com/rickgao/collab-relay/internal/version"
)

// Client provides access to a relay's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a REST client for the relay at baseURL (e.g. http://localhost:8001/api).
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.call(ctx, getRequest("/health", nil), &resp); err != nil {
		return nil, fmt.Errorf("get health: %w", err)
	}
	return &resp, nil
}

// Version calls GET /version.
func (c *Client) Version(ctx context.Context) (*version.Info, error) {
	var resp version.Info
	if err := c.call(ctx, getRequest("/version", nil), &resp); err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return &resp, nil
}

// Metrics calls GET /metrics.
func (c *Client) Metrics(ctx context.Context) (*MetricsResponse, error) {
	var resp MetricsResponse
	if err := c.call(ctx, getRequest("/metrics", nil), &resp); err != nil {
		return nil, fmt.Errorf("get metrics: %w", err)
	}
	return &resp, nil
}

// Events returns up to limit of the most recent lifecycle events.
func (c *Client) Events(ctx context.Context, limit int) ([]metrics.Event, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp []metrics.Event
	if err := c.call(ctx, getRequest("/metrics/events", query), &resp); err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	return resp, nil
}

// Rooms lists every room.
func (c *Client) Rooms(ctx context.Context) ([]RoomDetail, error) {
	var resp []RoomDetail
	if err := c.call(ctx, getRequest("/rooms", nil), &resp); err != nil {
		return nil, fmt.Errorf("get rooms: %w", err)
	}
	return resp, nil
}

// Room fetches one room.
func (c *Client) Room(ctx context.Context, roomID string) (*RoomDetail, error) {
	var resp RoomDetail
	if err := c.call(ctx, getRequest(roomPath(roomID, ""), nil), &resp); err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return &resp, nil
}

// RoomUsers lists the presence of one room.
func (c *Client) RoomUsers(ctx context.Context, roomID string) ([]room.UserInfo, error) {
	var resp []room.UserInfo
	if err := c.call(ctx, getRequest(roomPath(roomID, "/users"), nil), &resp); err != nil {
		return nil, fmt.Errorf("get room %s users: %w", roomID, err)
	}
	return resp, nil
}

// Persist saves the room document to the server's store. It is an upsert
// and is retried like a read.
func (c *Client) Persist(ctx context.Context, roomID string) (*PersistResponse, error) {
	var resp PersistResponse
	if err := c.call(ctx, request{method: http.MethodPost, path: roomPath(roomID, "/persist"), idempotent: true}, &resp); err != nil {
		return nil, fmt.Errorf("persist room %s: %w", roomID, err)
	}
	return &resp, nil
}

// Load replaces the room document with the persisted copy.
func (c *Client) Load(ctx context.Context, roomID string) (*PersistResponse, error) {
	var resp PersistResponse
	if err := c.call(ctx, getRequest(roomPath(roomID, "/load"), nil), &resp); err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	return &resp, nil
}

// SimulateUsers adds count synthetic users to a room. It is not retried.
func (c *Client) SimulateUsers(ctx context.Context, roomID string, count int) (*SimulateResponse, error) {
	query := url.Values{}
	if count > 0 {
		query.Set("count", strconv.Itoa(count))
	}

	var resp SimulateResponse
	if err := c.call(ctx, request{method: http.MethodPost, path: "/simulate/users/" + url.PathEscape(roomID), query: query}, &resp); err != nil {
		return nil, fmt.Errorf("simulate users in %s: %w", roomID, err)
	}
	return &resp, nil
}

// RemoveSimulatedUsers deletes every synthetic user from a room.
func (c *Client) RemoveSimulatedUsers(ctx context.Context, roomID string) (*RemoveSimulatedResponse, error) {
	var resp RemoveSimulatedResponse
	if err := c.call(ctx, request{method: http.MethodDelete, path: "/simulate/users/" + url.PathEscape(roomID), idempotent: true}, &resp); err != nil {
		return nil, fmt.Errorf("remove simulated users in %s: %w", roomID, err)
	}
	return &resp, nil
}

func roomPath(roomID, suffix string) string {
	return "/rooms/" + url.PathEscape(roomID) + suffix
}
