// Package redis stores room documents as Redis hashes.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/collab-relay/internal/store"
)

// DefaultKeyPrefix namespaces document keys.
const DefaultKeyPrefix = "relay:doc:"

const (
	fieldData      = "data"
	fieldUpdatedAt = "updated_at"
)

// Config configures the Redis store.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is prepended to every room id.
	// Default: "relay:doc:"
	KeyPrefix string

	// TTL expires persisted documents. Zero keeps them forever.
	TTL time.Duration
}

// Store is a DocumentStore backed by Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// New creates a Redis store.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	return &Store{
		client:    cfg.Client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
	}, nil
}

// Save upserts rec.
func (s *Store) Save(ctx context.Context, rec store.Record) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queue(ctx, pipe, rec)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save room %s: %w", rec.RoomID, err)
	}
	return nil
}

// SaveAll upserts recs in one pipeline.
func (s *Store) SaveAll(ctx context.Context, recs []store.Record) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, rec := range recs {
			s.queue(ctx, pipe, rec)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %d rooms: %w", len(recs), err)
	}
	return nil
}

// Load returns the record for roomID or store.ErrNotFound.
func (s *Store) Load(ctx context.Context, roomID string) (store.Record, error) {
	vals, err := s.client.HGetAll(ctx, s.key(roomID)).Result()
	if err != nil {
		return store.Record{}, fmt.Errorf("load room %s: %w", roomID, err)
	}
	data, ok := vals[fieldData]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}

	rec := store.Record{RoomID: roomID, Data: []byte(data)}
	if ts, err := strconv.ParseInt(vals[fieldUpdatedAt], 10, 64); err == nil {
		rec.UpdatedAt = time.UnixMicro(ts).UTC()
	}
	return rec, nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) queue(ctx context.Context, pipe redis.Pipeliner, rec store.Record) {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	key := s.key(rec.RoomID)
	pipe.HSet(ctx, key,
		fieldData, rec.Data,
		fieldUpdatedAt, updatedAt.UnixMicro(),
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func (s *Store) key(roomID string) string {
	return s.keyPrefix + roomID
}

var (
	_ store.DocumentStore = (*Store)(nil)
	_ store.BatchSaver    = (*Store)(nil)
	_ store.Pinger        = (*Store)(nil)
)
