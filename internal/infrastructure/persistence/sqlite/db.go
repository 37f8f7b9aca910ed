// Package sqlite implements the engine's stores on an embedded SQLite
// database, for single-node deployments. Aggregates are stored as JSON
// documents next to the columns the stores query.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB is an open SQLite database with the engine schema applied.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. The pool is limited to one connection: SQLite serializes writers
// anyway, and an in-memory database lives only as long as its connection.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA foreign_keys = ON;",
	}
	if path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL;", "PRAGMA synchronous = NORMAL;")
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying sqlite schema: %w", err)
		}
	}

	return &DB{db: db}, nil
}

// Ping checks that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// withTx runs fn in a transaction, committing on success.
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS progress_docs (
		user_id    TEXT PRIMARY KEY,
		version    INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		doc        TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS rating_docs (
		content_id TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		version    INTEGER NOT NULL,
		doc        TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS rating_members (
		content_id TEXT NOT NULL REFERENCES rating_docs(content_id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL,
		PRIMARY KEY (content_id, user_id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_rating_members_user ON rating_members(user_id);`,
	`CREATE TABLE IF NOT EXISTS achievement_counters (
		achievement_id TEXT PRIMARY KEY,
		total_earned   INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS content_items (
		id       TEXT PRIMARY KEY,
		kind     TEXT NOT NULL,
		title    TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE INDEX IF NOT EXISTS idx_content_items_kind ON content_items(kind);`,
}
