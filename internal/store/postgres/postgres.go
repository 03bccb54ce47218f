// Package postgres stores room documents in a PostgreSQL table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/collab-relay/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS room_documents (
	room_id    TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	size       INTEGER NOT NULL,
	updated_at BIGINT NOT NULL
)`

const upsertSQL = `
INSERT INTO room_documents (room_id, data, size, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (room_id) DO UPDATE
SET data = EXCLUDED.data, size = EXCLUDED.size, updated_at = EXCLUDED.updated_at`

const selectSQL = `SELECT data, updated_at FROM room_documents WHERE room_id = $1`

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
}

// Store is a DocumentStore backed by PostgreSQL.
type Store struct {
	db      DB
	closeFn func()
	logger  *slog.Logger
}

// New wraps db. closeFn, if non-nil, runs on Close (typically pool.Close).
func New(db DB, closeFn func(), logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, closeFn: closeFn, logger: logger}
}

// EnsureSchema creates the documents table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create room_documents: %w", err)
	}
	return nil
}

// Save upserts rec.
func (s *Store) Save(ctx context.Context, rec store.Record) error {
	args := upsertArgs(rec)
	if _, err := s.db.Exec(ctx, upsertSQL, args...); err != nil {
		return fmt.Errorf("upsert room %s: %w", rec.RoomID, err)
	}
	return nil
}

// SaveAll upserts recs in a single batch.
func (s *Store) SaveAll(ctx context.Context, recs []store.Record) error {
	batch := &pgx.Batch{}
	for _, r := range recs {
		batch.Queue(upsertSQL, upsertArgs(r)...)
	}

	start := time.Now()
	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for _, r := range recs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert room %s: %w", r.RoomID, err)
		}
	}

	s.logger.Debug("persisted documents",
		"count", len(recs),
		"duration", time.Since(start),
	)
	return nil
}

// Load returns the record for roomID or store.ErrNotFound.
func (s *Store) Load(ctx context.Context, roomID string) (store.Record, error) {
	var (
		data      []byte
		updatedAt int64
	)
	err := s.db.QueryRow(ctx, selectSQL, roomID).Scan(&data, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("select room %s: %w", roomID, err)
	}

	return store.Record{
		RoomID:    roomID,
		Data:      data,
		UpdatedAt: time.UnixMicro(updatedAt).UTC(),
	}, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool if the store owns it.
func (s *Store) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// upsertArgs stores updated_at as unix microseconds.
func upsertArgs(rec store.Record) []any {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	return []any{rec.RoomID, rec.Data, len(rec.Data), updatedAt.UnixMicro()}
}

var (
	_ store.DocumentStore = (*Store)(nil)
	_ store.BatchSaver    = (*Store)(nil)
	_ store.Pinger        = (*Store)(nil)
)
