// Package store persists room documents outside the relay process.
//
// The relay keeps every document in memory; a store is only written by an
// explicit persist call and only read by an explicit load call. Backends live
// in sub-packages (memory, postgres, redis, sqlite) and are selected by
// configuration.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Load when no document was persisted for a room.
var ErrNotFound = errors.New("store: document not found")

// Record is one persisted room document.
type Record struct {
	RoomID    string
	Data      []byte
	UpdatedAt time.Time
}

// Size returns the document length in bytes.
func (r Record) Size() int {
	return len(r.Data)
}

// DocumentStore saves and loads room documents. Save is an upsert keyed by
// room id; implementations must be safe for concurrent use.
type DocumentStore interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, roomID string) (Record, error)
	Close() error
}

// BatchSaver is implemented by stores that can write many records in one
// round trip.
type BatchSaver interface {
	SaveAll(ctx context.Context, recs []Record) error
}

// SaveAll writes recs through s, batching when s supports it. It stops at
// the first failed record.
func SaveAll(ctx context.Context, s DocumentStore, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	if b, ok := s.(BatchSaver); ok {
		return b.SaveAll(ctx, recs)
	}
	for _, rec := range recs {
		if err := s.Save(ctx, rec); err != nil {
			return fmt.Errorf("save room %s: %w", rec.RoomID, err)
		}
	}
	return nil
}

// Pinger is implemented by stores backed by a remote or file database.
type Pinger interface {
	Ping(ctx context.Context) error
}
