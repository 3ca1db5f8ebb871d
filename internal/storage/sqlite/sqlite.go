package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store is the SQLite-backed state store. The database is opened with a
// single connection so write transactions serialize on it: the version
// check and the mutation of a replace always execute as one atomic
// decision, the way a row lock on the state_meta singleton would in a
// server database.
type Store struct {
	db dbHandle
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db, true); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: &queryLogger{inner: db}}, nil
}

func NewInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db, false); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: &queryLogger{inner: db}}, nil
}

func configure(db *sql.DB, wal bool) error {
	// One connection: SQLite is single-writer anyway, and this guarantees
	// the PRAGMAs below apply to every statement we run.
	db.SetMaxOpenConns(1)
	if wal {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("wal mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("busy timeout: %w", err)
	}
	return applySchema(db)
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// isConstraint reports whether err is a uniqueness or referential
// integrity violation surfaced by the driver.
func isConstraint(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "constraint")
}
