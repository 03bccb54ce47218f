package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rickgao/collab-relay/internal/store"
)

func TestStore_SaveLoad(t *testing.T) {
	s := New()
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	data := []byte{0x01, 0x02, 0x03}
	if err := s.Save(ctx, store.Record{RoomID: "r1", Data: data, UpdatedAt: now}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's slice must not affect the stored copy.
	data[0] = 0xff

	rec, err := s.Load(ctx, "r1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(rec.Data) != "\x01\x02\x03" {
		t.Errorf("Data = %x, want 010203", rec.Data)
	}
	if rec.Size() != 3 {
		t.Errorf("Size() = %d, want 3", rec.Size())
	}
	if !rec.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", rec.UpdatedAt, now)
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	s.Save(ctx, store.Record{RoomID: "r1", Data: []byte("old")})
	s.Save(ctx, store.Record{RoomID: "r1", Data: []byte("new")})

	rec, err := s.Load(ctx, "r1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(rec.Data) != "new" {
		t.Errorf("Data = %q, want %q", rec.Data, "new")
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := New()

	_, err := s.Load(context.Background(), "nope")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}
