// Package statestore persists small opaque state blobs between invocations:
// the user's month selection and the progress of an interrupted run. The
// driver never reads this store; it keeps its own in-memory cursor as the
// source of truth.
package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Well-known keys.
const (
	KeySelection = "extensionState"
	KeyProgress  = "executionProgress"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("statestore: key not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is a SQLite-backed key-value store of JSON blobs.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (creating if necessary) the state database at path.
// Use ":memory:" for tests.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS state (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create state schema: %w", err)
	}

	return &Store{db: db, log: logger.Named("statestore")}, nil
}

// Put serializes value as JSON and upserts it under key.
func (s *Store) Put(ctx context.Context, key string, value any) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal state %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, blob, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("put state %q: %w", key, err)
	}
	s.log.Debug("state saved", zap.String("key", key), zap.Int("bytes", len(blob)))
	return nil
}

// Get loads the blob stored under key into out. Returns ErrNotFound when the
// key has never been written.
func (s *Store) Get(ctx context.Context, key string, out any) error {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get state %q: %w", key, err)
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("unmarshal state %q: %w", key, err)
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete state %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Progress mirrors the driver's numeric progress for the resume flow.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Mode    string `json:"mode"`
	RunID   string `json:"runId"`
}

// SaveProgress stores the latest run progress.
func (s *Store) SaveProgress(ctx context.Context, p Progress) error {
	return s.Put(ctx, KeyProgress, p)
}

// LoadProgress returns the last stored run progress.
func (s *Store) LoadProgress(ctx context.Context) (Progress, error) {
	var p Progress
	err := s.Get(ctx, KeyProgress, &p)
	return p, err
}
