package protocol

import (
	"encoding/json"
	"errors"
)

// FrameKind distinguishes JSON envelopes from raw binary updates.
type FrameKind int

const (
	TextFrame FrameKind = iota + 1
	BinaryFrame
)

func (k FrameKind) String() string {
	switch k {
	case TextFrame:
		return "text"
	case BinaryFrame:
		return "binary"
	default:
		return "unknown"
	}
}

// Frame is one unit read from or written to a transport.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Message type discriminators.
const (
	TypeJoin        = "join"
	TypeSyncRequest = "sync_request"
	TypeUpdate      = "update"
	TypeCursor      = "cursor"
	TypeSelection   = "selection"
	TypePing        = "ping"
	TypeAwareness   = "awareness"

	TypeSync       = "sync"
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	TypeUsersList  = "users_list"
	TypePong       = "pong"
	TypeError      = "error"
)

// Range is a selection span inside the document.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// UserInfo is the presence record of one participant.
type UserInfo struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Color          string  `json:"color"`
	AvatarURL      *string `json:"avatar_url,omitempty"`
	CursorPosition *int    `json:"cursor_position"`
	Selection      *Range  `json:"selection,omitempty"`
	Simulated      bool    `json:"simulated"`
}

// ProtocolError reports a frame the relay could not accept. It is answered
// with an error reply and never closes the connection.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err is (or wraps) a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// ClientMessage is the closed set of messages a client may send.
type ClientMessage interface {
	Type() string
	clientMessage()
}

// Join announces the sender's identity.
type Join struct {
	Name      string
	Color     string
	AvatarURL *string
}

// SyncRequest asks for the current document.
type SyncRequest struct{}

// Update replaces the room document.
type Update struct {
	Data []byte
}

// Cursor moves the sender's caret. A nil Position clears it.
type Cursor struct {
	Position *int
}

// Selection changes the sender's selected range. A nil Range clears it.
type Selection struct {
	Range *Range
}

// Ping is a client keepalive. Timestamp is echoed back untouched.
type Ping struct {
	Timestamp json.RawMessage
}

// Awareness carries opaque client awareness state.
type Awareness struct {
	Data json.RawMessage
}

func (Join) Type() string        { return TypeJoin }
func (SyncRequest) Type() string { return TypeSyncRequest }
func (Update) Type() string      { return TypeUpdate }
func (Cursor) Type() string      { return TypeCursor }
func (Selection) Type() string   { return TypeSelection }
func (Ping) Type() string        { return TypePing }
func (Awareness) Type() string   { return TypeAwareness }

func (Join) clientMessage()        {}
func (SyncRequest) clientMessage() {}
func (Update) clientMessage()      {}
func (Cursor) clientMessage()      {}
func (Selection) clientMessage()   {}
func (Ping) clientMessage()        {}
func (Awareness) clientMessage()   {}

// ServerMessage is the closed set of messages the relay sends.
type ServerMessage interface {
	Type() string
	serverMessage()
}

// Sync carries the full current document.
type Sync struct {
	Data []byte
}

// UpdateRelay forwards a document update to the other room members.
type UpdateRelay struct {
	Data []byte
	From string
}

// CursorRelay forwards a caret move.
type CursorRelay struct {
	UserID   string
	Name     string
	Color    string
	Position *int
}

// SelectionRelay forwards a selection change.
type SelectionRelay struct {
	UserID string
	Range  *Range
}

// AwarenessRelay forwards awareness state.
type AwarenessRelay struct {
	UserID string
	Data   json.RawMessage
}

// UserJoined announces a new participant.
type UserJoined struct {
	UserID string
	Name   string
	Color  string
}

// UserLeft announces a departed participant.
type UserLeft struct {
	UserID string
}

// UsersList lists the presence of a room.
type UsersList struct {
	Users []UserInfo
}

// Pong answers a Ping.
type Pong struct {
	Timestamp json.RawMessage
}

// Error reports a rejected frame to its sender.
type Error struct {
	Message string
}

func (Sync) Type() string           { return TypeSync }
func (UpdateRelay) Type() string    { return TypeUpdate }
func (CursorRelay) Type() string    { return TypeCursor }
func (SelectionRelay) Type() string { return TypeSelection }
func (AwarenessRelay) Type() string { return TypeAwareness }
func (UserJoined) Type() string     { return TypeUserJoined }
func (UserLeft) Type() string       { return TypeUserLeft }
func (UsersList) Type() string      { return TypeUsersList }
func (Pong) Type() string           { return TypePong }
func (Error) Type() string          { return TypeError }

func (Sync) serverMessage()           {}
func (UpdateRelay) serverMessage()    {}
func (CursorRelay) serverMessage()    {}
func (SelectionRelay) serverMessage() {}
func (AwarenessRelay) serverMessage() {}
func (UserJoined) serverMessage()     {}
func (UserLeft) serverMessage()       {}
func (UsersList) serverMessage()      {}
func (Pong) serverMessage()           {}
func (Error) serverMessage()          {}
