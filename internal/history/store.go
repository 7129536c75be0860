// Package history persists agent creation sessions in SQLite.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a session or artifact does not exist.
var ErrNotFound = errors.New("not found")

// Store is the session history database.
type Store struct {
	path   string
	db     *sql.DB
	mu     sync.RWMutex
	logger *slog.Logger
}

// Open opens or creates the database at path and ensures its schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{path: path, db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS session (
			id TEXT PRIMARY KEY,
			agent_name TEXT NOT NULL,
			prompt TEXT NOT NULL,
			language TEXT,
			model TEXT,
			final_code TEXT,
			max_attempts INTEGER,
			outcome TEXT,
			created_at TEXT NOT NULL,
			completed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_agent ON session(agent_name, outcome)`,
		`CREATE TABLE IF NOT EXISTS attempt (
			session_id TEXT NOT NULL REFERENCES session(id) ON DELETE CASCADE,
			number INTEGER NOT NULL,
			prompt TEXT,
			raw_response TEXT,
			extraction_succeeded INTEGER NOT NULL DEFAULT 0,
			extracted_code TEXT,
			utilities TEXT,
			generation_error TEXT,
			execution TEXT,
			started_at TEXT,
			completed_at TEXT,
			PRIMARY KEY (session_id, number)
		)`,
		`CREATE TABLE IF NOT EXISTS artifact (
			id INTEGER PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES session(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			content BLOB,
			size INTEGER,
			mimetype TEXT,
			ctime TEXT,
			UNIQUE(session_id, name)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return err
		}
		s.db = nil
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}
