package hub

import (
	"fmt"
	"log/slog"

	"github.com/rickgao/collab-relay/internal/metrics"
	"github.com/rickgao/collab-relay/internal/protocol"
	"github.com/rickgao/collab-relay/internal/room"
)

// Failure records one recipient that could not be reached.
type Failure struct {
	ClientID string
	Err      error
}

// Result is the per-recipient outcome of one fan-out.
type Result struct {
	Delivered []string
	Failed    []Failure
}

// Broadcaster delivers frames to every connection of a room except the sender.
type Broadcaster struct {
	registry *room.Registry
	metrics  *metrics.Collector
	logger   *slog.Logger

	// release tears down a recipient whose send failed.
	release func(*room.Connection) bool
}

func newBroadcaster(registry *room.Registry, collector *metrics.Collector, logger *slog.Logger, release func(*room.Connection) bool) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		metrics:  collector,
		logger:   logger,
		release:  release,
	}
}

// Broadcast encodes msg once and delivers it to the room, skipping excludeID.
func (b *Broadcaster) Broadcast(roomID string, msg protocol.ServerMessage, excludeID string) (Result, error) {
	data, err := protocol.Encode(msg)
	if err != nil {
		return Result{}, fmt.Errorf("broadcast %s: %w", msg.Type(), err)
	}
	return b.deliver(roomID, protocol.Frame{Kind: protocol.TextFrame, Data: data}, excludeID), nil
}

// BroadcastBinary delivers raw bytes to the room, skipping excludeID.
func (b *Broadcaster) BroadcastBinary(roomID string, data []byte, excludeID string) Result {
	return b.deliver(roomID, protocol.Frame{Kind: protocol.BinaryFrame, Data: data}, excludeID)
}

// deliver sends to a snapshot of the recipients taken before iterating.
// Failed recipients are released only after every send was attempted.
func (b *Broadcaster) deliver(roomID string, frame protocol.Frame, excludeID string) Result {
	recipients := b.registry.Connections(roomID, excludeID)

	result := Result{Delivered: make([]string, 0, len(recipients))}
	var failed []*room.Connection

	for _, c := range recipients {
		if err := c.Transport.Send(frame); err != nil {
			result.Failed = append(result.Failed, Failure{ClientID: c.ClientID, Err: err})
			failed = append(failed, c)
			continue
		}
		result.Delivered = append(result.Delivered, c.ClientID)
	}

	for i, c := range failed {
		b.logger.Warn("broadcast delivery failed",
			"room", roomID,
			"client_id", c.ClientID,
			"error", result.Failed[i].Err,
		)
		b.metrics.RecordError()
		b.release(c)
	}

	return result
}
