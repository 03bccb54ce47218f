// Package memory is a process-local DocumentStore, used when no external
// backend is configured and in tests.
package memory

import (
	"context"
	"sync"

	"github.com/rickgao/collab-relay/internal/store"
)

// Store keeps records in a map.
type Store struct {
	mu      sync.RWMutex
	records map[string]store.Record
}

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[string]store.Record)}
}

// Save upserts rec. The data slice is copied.
func (s *Store) Save(_ context.Context, rec store.Record) error {
	rec.Data = append([]byte(nil), rec.Data...)

	s.mu.Lock()
	s.records[rec.RoomID] = rec
	s.mu.Unlock()
	return nil
}

// Load returns a copy of the record for roomID or store.ErrNotFound.
func (s *Store) Load(_ context.Context, roomID string) (store.Record, error) {
	s.mu.RLock()
	rec, ok := s.records[roomID]
	s.mu.RUnlock()

	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	rec.Data = append([]byte(nil), rec.Data...)
	return rec, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

var _ store.DocumentStore = (*Store)(nil)
