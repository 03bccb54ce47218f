package connection

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/collab-relay/internal/protocol"
)

// Conn is an accepted WebSocket connection.
type Conn struct {
	cfg    Config
	logger *slog.Logger

	ws *websocket.Conn

	send chan protocol.Frame
	done chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps ws and starts its write pump.
func NewConn(ws *websocket.Conn, cfg Config, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.SendBufferSize < 1 {
		cfg.SendBufferSize = def.SendBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	c := &Conn{
		cfg:    cfg,
		logger: logger,
		ws:     ws,
		send:   make(chan protocol.Frame, cfg.SendBufferSize),
		done:   make(chan struct{}),
	}

	if cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(cfg.MaxMessageSize)
	}
	c.extendReadDeadline()
	ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	go c.writeLoop()
	return c
}

// Send queues a frame for the write pump. It never blocks: a full buffer
// means the peer is not keeping up and is reported as ErrSendBufferFull.
func (c *Conn) Send(frame protocol.Frame) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// ReadFrame blocks for the next frame. Closure by either side is io.EOF.
func (c *Conn) ReadFrame() (protocol.Frame, error) {
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		select {
		case <-c.done:
			return protocol.Frame{}, io.EOF
		default:
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return protocol.Frame{}, io.EOF
		}
		return protocol.Frame{}, err
	}

	c.extendReadDeadline()

	kind := protocol.TextFrame
	if mt == websocket.BinaryMessage {
		kind = protocol.BinaryFrame
	}
	return protocol.Frame{Kind: kind, Data: data}, nil
}

// Close sends a close frame and tears the socket down. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

func (c *Conn) extendReadDeadline() {
	if c.cfg.PongWait > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	}
}

// writeLoop is the only goroutine writing data frames to the socket.
func (c *Conn) writeLoop() {
	var tick <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			return

		case frame := <-c.send:
			mt := websocket.TextMessage
			if frame.Kind == protocol.BinaryFrame {
				mt = websocket.BinaryMessage
			}
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(mt, frame.Data); err != nil {
				c.logger.Debug("write failed", "remote", c.RemoteAddr(), "error", err)
				c.Close()
				return
			}

		case <-tick:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "remote", c.RemoteAddr(), "error", err)
				c.Close()
				return
			}
		}
	}
}
