// Package store persists reading positions and bookmarks in SQLite.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/simp-lee/reader/book"
)

//go:embed schema.sql
var schema string

// Config locates the database file.
type Config struct {
	Path string
}

// DefaultConfig returns the database location, honouring READER_DB_PATH.
func DefaultConfig() Config {
	if p := os.Getenv("READER_DB_PATH"); p != "" {
		return Config{Path: p}
	}

	// ~/.ebook-reader/reader.db
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return Config{
		Path: filepath.Join(home, ".ebook-reader", "reader.db"),
	}
}

// EnsureDataDir creates the directory holding the database file.
func EnsureDataDir(cfg Config) error {
	return os.MkdirAll(filepath.Dir(cfg.Path), 0o755)
}

// Store is the SQLite-backed persistence for reading state. It is safe for
// concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at cfg.Path and applies the schema.
func Open(cfg Config) (*Store, error) {
	if err := EnsureDataDir(cfg); err != nil {
		return nil, persistenceError("ensure data dir", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, persistenceError("open sqlite", err)
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, persistenceError("pragma foreign_keys", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = db.Close()
		return nil, persistenceError("pragma journal_mode", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, persistenceError("ping sqlite", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, persistenceError("apply schema", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("store: %s: %w: %w", op, book.ErrPersistence, err)
}
