package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database that holds console metadata snapshots.
type DB struct {
	conn *sql.DB
}

// NewDB opens/creates a SQLite database at the given path and initializes schema.
func NewDB(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; also keeps ":memory:" databases on one connection.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initSchema creates the necessary tables if they don't exist.
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS console_metadata (
		scope TEXT PRIMARY KEY,
		payload BLOB,
		updated_at INTEGER NOT NULL
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// PutSnapshot stores the payload for a scope, replacing any previous one.
func (db *DB) PutSnapshot(ctx context.Context, scope string, payload []byte) error {
	query := `
		INSERT INTO console_metadata (scope, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`

	if payload == nil {
		payload = []byte{}
	}
	if _, err := db.conn.ExecContext(ctx, query, scope, payload, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to save metadata snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the snapshot for a scope, or nil if none was saved.
func (db *DB) GetSnapshot(ctx context.Context, scope string) (*Snapshot, error) {
	query := `SELECT payload, updated_at FROM console_metadata WHERE scope = ?`

	var snap Snapshot
	var updatedMillis int64
	err := db.conn.QueryRowContext(ctx, query, scope).Scan(&snap.Payload, &updatedMillis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata snapshot: %w", err)
	}

	snap.Scope = scope
	snap.UpdatedAt = time.UnixMilli(updatedMillis)
	return &snap, nil
}

// DeleteSnapshot removes the snapshot for a scope.
func (db *DB) DeleteSnapshot(ctx context.Context, scope string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM console_metadata WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("failed to delete metadata snapshot: %w", err)
	}
	return nil
}

// Store returns the MetadataStore of one scope.
func (db *DB) Store(scope string) *ScopedStore {
	return &ScopedStore{db: db, scope: scope}
}

// ScopedStore is a MetadataStore backed by one row of the database.
type ScopedStore struct {
	db    *DB
	scope string
}

// Load implements MetadataStore.
func (s *ScopedStore) Load(ctx context.Context) ([]byte, error) {
	snap, err := s.db.GetSnapshot(ctx, s.scope)
	if err != nil || snap == nil {
		return nil, err
	}
	return snap.Payload, nil
}

// Save implements MetadataStore.
func (s *ScopedStore) Save(ctx context.Context, data []byte) error {
	return s.db.PutSnapshot(ctx, s.scope, data)
}
