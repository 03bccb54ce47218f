// Package sqlite stores room documents in a local SQLite file using the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rickgao/collab-relay/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS room_documents (
	room_id    TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	size       INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);`

const upsertSQL = `
INSERT INTO room_documents (room_id, data, size, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(room_id) DO UPDATE SET
	data = excluded.data,
	size = excluded.size,
	updated_at = excluded.updated_at`

// Store is a DocumentStore backed by SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the database at path and creates the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Save upserts rec.
func (s *Store) Save(ctx context.Context, rec store.Record) error {
	if _, err := s.sqlDB.ExecContext(ctx, upsertSQL, upsertArgs(rec)...); err != nil {
		return fmt.Errorf("upsert room %s: %w", rec.RoomID, err)
	}
	return nil
}

// SaveAll upserts recs in one transaction.
func (s *Store) SaveAll(ctx context.Context, recs []store.Record) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, upsertArgs(rec)...); err != nil {
			return fmt.Errorf("upsert room %s: %w", rec.RoomID, err)
		}
	}
	return tx.Commit()
}

// Load returns the record for roomID or store.ErrNotFound.
func (s *Store) Load(ctx context.Context, roomID string) (store.Record, error) {
	var (
		data      []byte
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT data, updated_at FROM room_documents WHERE room_id = ?`,
		roomID,
	).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("select room %s: %w", roomID, err)
	}

	return store.Record{
		RoomID:    roomID,
		Data:      data,
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}, nil
}

// Ping checks the database file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func upsertArgs(rec store.Record) []any {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	data := rec.Data
	if data == nil {
		data = []byte{}
	}
	return []any{rec.RoomID, data, len(data), updatedAt.UnixMilli()}
}

var (
	_ store.DocumentStore = (*Store)(nil)
	_ store.BatchSaver    = (*Store)(nil)
	_ store.Pinger        = (*Store)(nil)
)
