package protocol

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Wire types for JSON parsing

// messageEnvelope is used for fast type extraction.
type messageEnvelope struct {
	Type string `json:"type"`
}

type joinWire struct {
	Name      string  `json:"name"`
	Color     string  `json:"color"`
	AvatarURL *string `json:"avatar_url"`
}

type updateWire struct {
	Type string `json:"type"`
	Data string `json:"data"`
	From string `json:"from,omitempty"`
}

type cursorWire struct {
	Type     string `json:"type"`
	UserID   string `json:"userId,omitempty"`
	Name     string `json:"name,omitempty"`
	Color    string `json:"color,omitempty"`
	Position *int   `json:"position"`
}

type selectionWire struct {
	Type   string `json:"type"`
	UserID string `json:"userId,omitempty"`
	Range  *Range `json:"range"`
}

type pingWire struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type awarenessWire struct {
	Type   string          `json:"type"`
	UserID string          `json:"userId,omitempty"`
	Data   json.RawMessage `json:"data"`
}

type syncWire struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type userJoinedWire struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Color  string `json:"color"`
}

type userLeftWire struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type usersListWire struct {
	Type  string     `json:"type"`
	Users []UserInfo `json:"users"`
}

type errorWire struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Decode parses one JSON envelope into a ClientMessage. Every failure is a
// *ProtocolError.
func Decode(data []byte) (ClientMessage, error) {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ProtocolError{Reason: "invalid JSON", Err: err}
	}

	switch env.Type {
	case TypeJoin:
		var w joinWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed(env.Type, err)
		}
		return Join{Name: w.Name, Color: w.Color, AvatarURL: w.AvatarURL}, nil

	case TypeSyncRequest:
		return SyncRequest{}, nil

	case TypeUpdate:
		var w updateWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed(env.Type, err)
		}
		blob, err := DecodeHex(w.Data)
		if err != nil {
			return nil, &ProtocolError{Reason: "invalid update data", Err: err}
		}
		return Update{Data: blob}, nil

	case TypeCursor:
		var w cursorWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed(env.Type, err)
		}
		return Cursor{Position: w.Position}, nil

	case TypeSelection:
		var w selectionWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed(env.Type, err)
		}
		return Selection{Range: w.Range}, nil

	case TypePing:
		var w pingWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed(env.Type, err)
		}
		return Ping{Timestamp: w.Timestamp}, nil

	case TypeAwareness:
		var w awarenessWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, malformed(env.Type, err)
		}
		return Awareness{Data: w.Data}, nil

	case "":
		return nil, &ProtocolError{Reason: "missing message type"}

	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown message type %q", env.Type)}
	}
}

// Encode serializes a ServerMessage into a JSON envelope.
func Encode(msg ServerMessage) ([]byte, error) {
	var v any

	switch m := msg.(type) {
	case Sync:
		v = syncWire{Type: TypeSync, Data: EncodeHex(m.Data)}
	case UpdateRelay:
		v = updateWire{Type: TypeUpdate, Data: EncodeHex(m.Data), From: m.From}
	case CursorRelay:
		v = cursorWire{Type: TypeCursor, UserID: m.UserID, Name: m.Name, Color: m.Color, Position: m.Position}
	case SelectionRelay:
		v = selectionWire{Type: TypeSelection, UserID: m.UserID, Range: m.Range}
	case AwarenessRelay:
		v = awarenessWire{Type: TypeAwareness, UserID: m.UserID, Data: nullIfEmpty(m.Data)}
	case UserJoined:
		v = userJoinedWire{Type: TypeUserJoined, UserID: m.UserID, Name: m.Name, Color: m.Color}
	case UserLeft:
		v = userLeftWire{Type: TypeUserLeft, UserID: m.UserID}
	case UsersList:
		users := m.Users
		if users == nil {
			users = []UserInfo{}
		}
		v = usersListWire{Type: TypeUsersList, Users: users}
	case Pong:
		v = pingWire{Type: TypePong, Timestamp: nullIfEmpty(m.Timestamp)}
	case Error:
		v = errorWire{Type: TypeError, Message: m.Message}
	default:
		return nil, fmt.Errorf("encode: unsupported message %T", msg)
	}

	return json.Marshal(v)
}

// EncodeHex renders document bytes for a JSON envelope.
func EncodeHex(data []byte) string {
	return hex.EncodeToString(data)
}

// DecodeHex parses hex document bytes from a JSON envelope.
func DecodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

func malformed(msgType string, err error) error {
	return &ProtocolError{Reason: "malformed " + msgType + " message", Err: err}
}

func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
