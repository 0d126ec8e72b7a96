// Package sqlite is the authoritative reservation store. A single sqlite file
// backs both access paths: the mutating API served over HTTP and the direct
// read-only queries the hooks run in-process.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// timeFormat is RFC 3339 with fixed-width nanoseconds. Timestamps are
// stored and compared as TEXT, so the format must sort lexicographically;
// RFC3339Nano trims trailing fractional zeros and misorders values within
// the same second.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

type Store struct {
	db dbHandle
}

// New opens (creating if needed) the store at path and applies the schema.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: &queryLogger{inner: db}}, nil
}

// OpenRead opens an existing store for hot-path queries. It applies no schema
// and fails when the file is absent rather than creating an empty store.
func OpenRead(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat db: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(1000)&_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return &Store{db: &queryLogger{inner: db}}, nil
}

// NewInMemory creates a throwaway store for tests.
func NewInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Each pooled connection would otherwise get its own empty memory DB.
	db.SetMaxOpenConns(1)
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: &queryLogger{inner: db}}, nil
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
