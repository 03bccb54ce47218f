package connection

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/collab-relay/internal/protocol"
)

const handshakeTimeout = 10 * time.Second

// Client represents a single dialed WebSocket connection to a relay room.
type Client interface {
	// Connect dials the room URL.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Send queues one frame for the write pump.
	Send(frame protocol.Frame) error

	// Frames returns a channel of every received frame with its local receive time.
	Frames() <-chan TimestampedFrame

	// Errors returns the error that ended the connection, including io.EOF
	// when the relay closes it.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// client dials a room and drives the same Conn write pump the server uses.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	frames chan TimestampedFrame
	errors chan error

	mu     sync.RWMutex
	conn   *Conn
	closed bool
}

// NewClient creates a new WebSocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	return &client{
		cfg:    cfg,
		logger: logger,
		frames: make(chan TimestampedFrame, cfg.BufferSize),
		errors: make(chan error, 1),
	}
}

// Connect dials the room URL and starts reading.
func (c *client) Connect(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrAlreadyClosed
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	var header http.Header
	if c.cfg.Origin != "" {
		header = http.Header{"Origin": {c.cfg.Origin}}
	}

	ws, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	conn := NewConn(ws, Config{
		WriteTimeout:   c.cfg.WriteTimeout,
		PongWait:       c.cfg.PingTimeout,
		PingInterval:   c.cfg.PingInterval,
		SendBufferSize: c.cfg.BufferSize,
	}, c.logger)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	return nil
}

// Close gracefully closes the connection. Safe to call more than once.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Send queues one frame for the write pump.
func (c *client) Send(frame protocol.Frame) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(frame)
}

// Frames returns the frames channel.
func (c *client) Frames() <-chan TimestampedFrame {
	return c.frames
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// readLoop forwards frames until the connection ends, then reports why
// unless the client closed it.
func (c *client) readLoop(conn *Conn) {
	for {
		frame, err := conn.ReadFrame()
		receivedAt := time.Now()

		if err != nil {
			c.mu.Lock()
			closing := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			conn.Close()

			if closing {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				c.logger.Warn("no pong received, connection stale", "timeout", c.cfg.PingTimeout)
				err = ErrStaleConnection
			}
			select {
			case c.errors <- err:
			default:
			}
			return
		}

		select {
		case c.frames <- TimestampedFrame{Frame: frame, ReceivedAt: receivedAt}:
		default:
			c.logger.Warn("frame buffer full, dropping frame")
		}
	}
}
