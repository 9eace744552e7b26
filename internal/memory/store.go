// Package memory implements the Memory Store: a SQLite-backed facade over
// three logical concerns — Memories (BM25-searchable notes), Tasks, and a
// Meta key/value scratch table — exposed as a single connection owned by
// one Store value.
package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

// Store owns a single SQLite connection implementing the Memories, Tasks,
// and Meta concerns. It is safe for serialized use from one thread at a
// time; WAL mode plus a busy timeout permit non-overlapping writers from
// separate connections, but this facade itself holds one connection.
type Store struct {
	db *sql.DB
}

// Open creates parent directories as needed, opens path with the
// production SQLite driver, enables WAL mode with synchronous=NORMAL and
// a 5-second busy timeout, and idempotently initializes schema.
func Open(path string) (*Store, error) {
	return OpenWithDriver(path, defaultDriver)
}

// OpenWithDriver is Open with an explicit sql driver name, so tests can
// substitute the pure-Go modernc.org/sqlite driver.
func OpenWithDriver(path, driverName string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("memory: create %s: %w", dir, err)
		}
	}

	db, err := sql.Open(driverName, path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("memory: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("memory: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT 'general',
			tags TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			importance INTEGER NOT NULL DEFAULT 5,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			expires_at INTEGER
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			content, category, tags,
			content='memories', content_rowid='rowid',
			tokenize='porter'
		)`,
		`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, content, category, tags)
			VALUES (new.rowid, new.content, new.category, new.tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content, category, tags)
			VALUES ('delete', old.rowid, old.content, old.category, old.tags);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, content, category, tags)
			VALUES ('delete', old.rowid, old.content, old.category, old.tags);
			INSERT INTO memories_fts(rowid, content, category, tags)
			VALUES (new.rowid, new.content, new.category, new.tags);
		END`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			channel TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			due_at INTEGER NOT NULL DEFAULT 0,
			completed INTEGER NOT NULL DEFAULT 0,
			completed_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_due_at ON tasks(due_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_channel ON tasks(channel)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("memory: init schema: %w", err)
		}
	}
	return nil
}
