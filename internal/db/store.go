package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/salespilot/core/internal/models"
)

// Store provides durable key-value storage for the sync engine plus the
// conflict audit log. The engine persists the whole queue under one key in
// a single write, so each value is stored as one row and fully replaced on
// every update.
type Store struct {
	db *DB
}

// NewStore creates a Store over an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Init creates the storage tables if they don't exist.
func (s *Store) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS conflict_log (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		strategy TEXT NOT NULL,
		local_timestamp INTEGER NOT NULL DEFAULT 0,
		server_timestamp INTEGER NOT NULL DEFAULT 0,
		resolved_at INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create sync tables: %w", err)
	}
	return nil
}

// Get returns the value stored under key. The second return value reports
// whether the key exists.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM sync_kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, true, nil
}

// Set overwrites the value stored under key in one write.
func (s *Store) Set(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Delete removes the value stored under key. Deleting a missing key is not
// an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM sync_kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// RecordConflict appends a resolved conflict to the audit log.
func (s *Store) RecordConflict(entry *models.ConflictLog) error {
	if entry.ID == "" {
		entry.ID = models.UUID(uuid.New().String())
	}
	_, err := s.db.Exec(`
		INSERT INTO conflict_log (id, entity_type, entity_id, strategy, local_timestamp, server_timestamp, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.EntityType, entry.EntityID, entry.Strategy,
		entry.LocalTimestamp, entry.ServerTimestamp, entry.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to record conflict: %w", err)
	}
	return nil
}

// ListConflicts returns the most recently resolved conflicts, newest first.
func (s *Store) ListConflicts(limit int) ([]*models.ConflictLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, entity_type, entity_id, strategy, local_timestamp, server_timestamp, resolved_at
		FROM conflict_log ORDER BY resolved_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var entries []*models.ConflictLog
	for rows.Next() {
		entry := &models.ConflictLog{}
		if err := rows.Scan(&entry.ID, &entry.EntityType, &entry.EntityID, &entry.Strategy,
			&entry.LocalTimestamp, &entry.ServerTimestamp, &entry.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conflict row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
