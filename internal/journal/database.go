// Package journal records playback sessions in a SQLite database and
// answers history queries over them.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// MemoryPath opens a private in-memory journal
const MemoryPath = ":memory:"

// NewDatabase opens the SQLite journal at dbPath and applies the schema
func NewDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != MemoryPath {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps :memory: databases coherent and serializes
	// writes from concurrent completion handlers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA user_version = 1",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	slog.Debug("journal database ready", "path", dbPath)
	return db, nil
}

// ensureSchema creates the database schema if it doesn't exist
func ensureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS playback_sessions (
    id           INTEGER PRIMARY KEY,
    session_id   TEXT    NOT NULL UNIQUE,
    started_at   INTEGER NOT NULL,
    finished_at  INTEGER,
    player       TEXT    NOT NULL,
    device_id    TEXT    NOT NULL,
    file_path    TEXT    NOT NULL,
    volume       INTEGER NOT NULL CHECK (volume >= 0),
    delete_after INTEGER NOT NULL CHECK (delete_after IN (0,1)),
    status       TEXT    NOT NULL CHECK (status IN ('playing','completed','interrupted','failed')),
    error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON playback_sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_player ON playback_sessions(player);
CREATE INDEX IF NOT EXISTS idx_sessions_failed ON playback_sessions(status) WHERE status != 'completed';
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}
