// Package session runs the per-connection protocol state machine.
//
// A Session reads frames from one transport, decodes them and dispatches to
// the room registry and broadcaster. It has no knowledge of the underlying
// socket library; anything implementing Transport can drive it.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rickgao/collab-relay/internal/hub"
	"github.com/rickgao/collab-relay/internal/metrics"
	"github.com/rickgao/collab-relay/internal/protocol"
	"github.com/rickgao/collab-relay/internal/room"
)

// Transport is a full-duplex client channel.
type Transport interface {
	room.Transport

	// ReadFrame blocks for the next inbound frame. A clean close is io.EOF.
	ReadFrame() (protocol.Frame, error)
}

// State is the protocol state of a session.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Defaults applied to a join that omits identity fields.
const (
	DefaultColor     = "#3B82F6"
	defaultNameChars = 6
)

// Session serves one client connection.
type Session struct {
	roomID    string
	clientID  string
	transport Transport

	manager     *hub.Manager
	registry    *room.Registry
	broadcaster *hub.Broadcaster
	metrics     *metrics.Collector
	logger      *slog.Logger

	conn  *room.Connection
	state atomic.Int32
}

// New creates a session for clientID in roomID. Nothing is registered until Run.
func New(transport Transport, roomID, clientID string, manager *hub.Manager, collector *metrics.Collector, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		roomID:      roomID,
		clientID:    clientID,
		transport:   transport,
		manager:     manager,
		registry:    manager.Registry(),
		broadcaster: manager.Broadcaster(),
		metrics:     collector,
		logger:      logger.With("room", roomID, "client_id", clientID),
	}
}

// State returns the current protocol state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// Run registers the connection and processes frames until the transport
// closes, fails or ctx is cancelled. The connection is always released on
// return, including when a handler panics.
func (s *Session) Run(ctx context.Context) (err error) {
	s.conn = s.manager.Connect(s.transport, s.roomID, s.clientID)

	stop := context.AfterFunc(ctx, func() {
		s.transport.Close()
	})

	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordError()
			s.logger.Error("session panic", "panic", r)
			err = fmt.Errorf("session %s: panic: %v", s.clientID, r)
		}
		stop()
		s.setState(StateClosed)
		s.manager.Release(s.conn)
	}()

	for {
		frame, err := s.transport.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			s.metrics.RecordError()
			s.logger.Debug("read failed", "error", err)
			return fmt.Errorf("read frame: %w", err)
		}

		start := time.Now()
		s.handleFrame(frame)
		s.metrics.RecordMessage(float64(time.Since(start).Microseconds()) / 1000)
	}
}

func (s *Session) handleFrame(frame protocol.Frame) {
	if frame.Kind == protocol.BinaryFrame {
		s.onBinary(frame.Data)
		return
	}

	msg, err := protocol.Decode(frame.Data)
	if err != nil {
		s.reject(err)
		return
	}
	s.dispatch(msg)
}

// dispatch routes one decoded message. Before join only join and
// sync_request are accepted.
func (s *Session) dispatch(msg protocol.ClientMessage) {
	if s.State() == StateConnecting {
		switch msg.(type) {
		case protocol.Join, protocol.SyncRequest:
		default:
			s.reject(&protocol.ProtocolError{Reason: msg.Type() + " requires join"})
			return
		}
	}

	switch m := msg.(type) {
	case protocol.Join:
		s.onJoin(m)
	case protocol.SyncRequest:
		s.reply(protocol.Sync{Data: s.registry.Document(s.roomID)})
	case protocol.Update:
		s.onUpdate(m)
	case protocol.Cursor:
		s.onCursor(m)
	case protocol.Selection:
		s.onSelection(m)
	case protocol.Ping:
		s.reply(protocol.Pong{Timestamp: m.Timestamp})
	case protocol.Awareness:
		s.setState(StateActive)
		s.broadcast(protocol.AwarenessRelay{UserID: s.clientID, Data: m.Data})
	default:
		s.reject(&protocol.ProtocolError{Reason: fmt.Sprintf("unsupported message %T", msg)})
	}
}

func (s *Session) onJoin(m protocol.Join) {
	user := room.UserInfo{
		ID:        s.clientID,
		Name:      m.Name,
		Color:     m.Color,
		AvatarURL: m.AvatarURL,
	}
	if user.Name == "" {
		user.Name = defaultName(s.clientID)
	}
	if user.Color == "" {
		user.Color = DefaultColor
	}

	s.registry.Join(s.roomID, user)
	s.setState(StateJoined)
	s.metrics.AddEvent(metrics.EventJoin, s.roomID, s.clientID, "User "+user.Name+" joined")
	s.logger.Info("client joined", "name", user.Name)

	s.broadcast(protocol.UserJoined{UserID: user.ID, Name: user.Name, Color: user.Color})

	if doc := s.registry.Document(s.roomID); len(doc) > 0 {
		s.reply(protocol.Sync{Data: doc})
	}
	s.reply(protocol.UsersList{Users: s.registry.Presence(s.roomID, s.clientID)})
}

func (s *Session) onUpdate(m protocol.Update) {
	s.setState(StateActive)
	if len(m.Data) == 0 {
		return
	}
	s.registry.StoreDocument(s.roomID, m.Data)
	s.broadcast(protocol.UpdateRelay{Data: m.Data, From: s.clientID})
}

func (s *Session) onBinary(data []byte) {
	if s.State() == StateConnecting {
		s.reject(&protocol.ProtocolError{Reason: "binary update requires join"})
		return
	}
	s.setState(StateActive)
	if len(data) == 0 {
		return
	}
	s.registry.StoreDocument(s.roomID, data)
	s.broadcaster.BroadcastBinary(s.roomID, data, s.clientID)
}

func (s *Session) onCursor(m protocol.Cursor) {
	s.setState(StateActive)
	user, ok := s.registry.UpdateCursor(s.roomID, s.clientID, m.Position)
	if !ok {
		return
	}
	s.broadcast(protocol.CursorRelay{
		UserID:   user.ID,
		Name:     user.Name,
		Color:    user.Color,
		Position: user.CursorPosition,
	})
}

func (s *Session) onSelection(m protocol.Selection) {
	s.setState(StateActive)
	user, ok := s.registry.UpdateSelection(s.roomID, s.clientID, m.Range)
	if !ok {
		return
	}
	s.broadcast(protocol.SelectionRelay{UserID: user.ID, Range: user.Selection})
}

func (s *Session) broadcast(msg protocol.ServerMessage) {
	if _, err := s.broadcaster.Broadcast(s.roomID, msg, s.clientID); err != nil {
		s.logger.Error("broadcast failed", "type", msg.Type(), "error", err)
	}
}

// reply sends msg to this session's own client. A failed send is a
// transport error and releases the connection.
func (s *Session) reply(msg protocol.ServerMessage) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error("encode reply", "type", msg.Type(), "error", err)
		return
	}
	if err := s.transport.Send(protocol.Frame{Kind: protocol.TextFrame, Data: data}); err != nil {
		s.metrics.RecordError()
		s.logger.Debug("reply failed", "type", msg.Type(), "error", err)
		s.manager.Release(s.conn)
	}
}

// reject answers a protocol error without closing the connection.
func (s *Session) reject(err error) {
	s.metrics.RecordError()
	s.logger.Debug("protocol error", "error", err)
	s.reply(protocol.Error{Message: err.Error()})
}

func defaultName(clientID string) string {
	id := clientID
	if len(id) > defaultNameChars {
		id = id[:defaultNameChars]
	}
	return "User-" + id
}
