// Package store provides SQLite-based persistence for Trinity.
// It manages branches, commits, schema objects, merge operations,
// conflicts, and advisory lock leases.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store represents the SQLite database store
type Store struct {
	db *sql.DB
}

// New creates a new store connection
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Initialize creates the database schema
func (s *Store) Initialize() error {
	schema := `
	-- Branches (forest: parent_id references another branch or NULL)
	CREATE TABLE IF NOT EXISTS branches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		parent_id INTEGER REFERENCES branches(id),
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		head_commit_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Commits (immutable once created)
	CREATE TABLE IF NOT EXISTS commits (
		id TEXT PRIMARY KEY,
		branch_id INTEGER NOT NULL REFERENCES branches(id),
		parent_id TEXT REFERENCES commits(id),
		message TEXT NOT NULL,
		author TEXT,
		tree_hash TEXT,
		authored_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		committed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Schema objects, one row per (object, branch)
	CREATE TABLE IF NOT EXISTS schema_objects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		branch_id INTEGER NOT NULL REFERENCES branches(id),
		object_type TEXT NOT NULL,
		schema_name TEXT NOT NULL,
		object_name TEXT NOT NULL,
		definition JSON,
		fingerprint TEXT NOT NULL,
		v_major INTEGER NOT NULL DEFAULT 1,
		v_minor INTEGER NOT NULL DEFAULT 0,
		v_patch INTEGER NOT NULL DEFAULT 0,
		parent_object_id INTEGER REFERENCES schema_objects(id),
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(object_type, schema_name, object_name, branch_id)
	);

	-- Merge operations (state machine records)
	CREATE TABLE IF NOT EXISTS merge_operations (
		id TEXT PRIMARY KEY,
		source_branch_id INTEGER NOT NULL REFERENCES branches(id),
		target_branch_id INTEGER NOT NULL REFERENCES branches(id),
		base_branch_id INTEGER NOT NULL REFERENCES branches(id),
		strategy TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT,
		initiated_by TEXT,
		conflict_count INTEGER NOT NULL DEFAULT 0,
		auto_resolved_count INTEGER NOT NULL DEFAULT 0,
		manual_count INTEGER NOT NULL DEFAULT 0,
		result_commit_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Conflicts detected for a merge operation
	CREATE TABLE IF NOT EXISTS merge_conflicts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		merge_id TEXT NOT NULL REFERENCES merge_operations(id),
		object_type TEXT NOT NULL,
		object_schema TEXT NOT NULL,
		object_name TEXT NOT NULL,
		conflict_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		auto_resolvable BOOLEAN NOT NULL DEFAULT FALSE,
		dependent_count INTEGER NOT NULL DEFAULT 0,
		base_fingerprint TEXT,
		source_fingerprint TEXT,
		target_fingerprint TEXT,
		status TEXT NOT NULL DEFAULT 'open',
		resolution TEXT,
		custom_definition TEXT,
		resolved_by TEXT,
		resolved_at DATETIME
	);

	-- Advisory lock leases (integer-keyed, owner-scoped, expiring)
	CREATE TABLE IF NOT EXISTS leases (
		lock_key INTEGER PRIMARY KEY,
		owner TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);

	-- Config (default branch pointer, etc.)
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_commits_branch ON commits(branch_id);
	CREATE INDEX IF NOT EXISTS idx_objects_branch ON schema_objects(branch_id);
	CREATE INDEX IF NOT EXISTS idx_objects_parent ON schema_objects(parent_object_id);
	CREATE INDEX IF NOT EXISTS idx_conflicts_merge ON merge_conflicts(merge_id);
	CREATE INDEX IF NOT EXISTS idx_merges_branches ON merge_operations(source_branch_id, target_branch_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// DB returns the underlying database connection for advanced queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction. Any error rolls the transaction
// back; the rollback itself never masks fn's error.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetValue gets a value from the key-value store
func (s *Store) GetValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetValue sets a value in the key-value store
func (s *Store) SetValue(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = ?",
		key, value, value,
	)
	return err
}

// parseTimestamp parses a timestamp string from SQLite in various formats
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
