// Package db provides the SQLite-backed record store for dashboard tiles.
//
// This package is the wire layer underneath the tile repository. It knows
// how tiles are laid out as rows, and nothing about change notification or
// caching.
//
// The database runs in embedded mode (ncruces/go-sqlite3, WASM build of
// SQLite) with WAL enabled so the dashboard can keep reading while an admin
// save is being written, and so several tileboard processes may share one
// database file.
//
// Layout:
//   - Table tiles: one row per tile, keyed by id
//   - position:    persisted sort order (index in the saved sequence)
//   - updated_at:  unix milliseconds of the write that produced the row
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
)

// DB wraps the SQLite connection with tile-specific queries.
type DB struct {
	conn *sql.DB
	path string
}

// Record is the persisted form of a tile.
type Record struct {
	schema.Tile
	Position  int
	UpdatedAt time.Time
}

// Open creates a new database connection at the specified path.
//
// The parent directory is created if needed. The caller MUST call Close()
// when done.
//
// Example:
//
//	store, err := db.Open("data/tiles.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext opens the database with context support.
func OpenContext(ctx context.Context, path string) (*DB, error) {
	path = strings.TrimPrefix(path, "file:")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.conn.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// Path returns the filesystem path of the database file.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tiles table if it doesn't exist. Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS tiles (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tiles_position ON tiles(position);
	`

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SelectAll returns every record ordered by position ascending.
// Ties (which only a foreign writer could produce) fall back to id order.
func (db *DB) SelectAll(ctx context.Context) ([]Record, error) {
	query := `
		SELECT id, label, url, icon, image_url, description, position, updated_at
		FROM tiles
		ORDER BY position ASC, id ASC
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiles: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r       Record
			updated int64
		)
		if err := rows.Scan(
			&r.ID, &r.Label, &r.URL, &r.Icon, &r.ImageURL, &r.Description,
			&r.Position, &updated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tile: %w", err)
		}
		r.UpdatedAt = time.UnixMilli(updated).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tiles: %w", err)
	}
	return records, nil
}

// ReplaceAll discards every existing row and inserts tiles with
// position = index, all stamped with updatedAt.
//
// The delete and the inserts run in one transaction, so readers of this
// database never observe the empty intermediate state.
func (db *DB) ReplaceAll(ctx context.Context, tiles []schema.Tile, updatedAt time.Time) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tiles"); err != nil {
		return fmt.Errorf("failed to clear tiles: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tiles (id, label, url, icon, image_url, description, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	stamp := updatedAt.UnixMilli()
	for i, t := range tiles {
		if _, err := stmt.ExecContext(ctx,
			t.ID, t.Label, t.URL, t.Icon, t.ImageURL, t.Description, i, stamp,
		); err != nil {
			return fmt.Errorf("failed to insert tile %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LastUpdated returns the newest updated_at across all rows.
// The zero time is returned for an empty table.
func (db *DB) LastUpdated(ctx context.Context) (time.Time, error) {
	var newest sql.NullInt64
	err := db.conn.QueryRowContext(ctx, "SELECT MAX(updated_at) FROM tiles").Scan(&newest)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last updated: %w", err)
	}
	if !newest.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(newest.Int64).UTC(), nil
}

// Count returns the number of tiles stored.
func (db *DB) Count(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tiles").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get tile count: %w", err)
	}
	return count, nil
}
