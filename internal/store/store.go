// Package store provides the durable local replica: one keyed table per
// entity type plus the engine's own bookkeeping tables. It is the only
// source of truth when offline.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/adorsys-gis/dgat-sync/internal/errors"
)

// Store wraps the SQLite handle with engine-specific configuration.
// A single Store is constructed at process start and injected into the
// reconciler and sync queue.
type Store struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// Open opens the local store database under dataDir. The database is opened
// with WAL mode for concurrent reads, foreign keys enabled, and a single
// writer connection (SQLite does not support multiple writers).
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "replica.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes cached statements and the underlying database.
func (s *Store) Close() error {
	s.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		stmt.Close()
		return true
	})
	return s.db.Close()
}

// prepareStmt gets or creates a prepared statement from the cache.
func (s *Store) prepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate.
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// classify maps low-level SQLite errors onto the engine taxonomy.
// A full disk or database is fatal and user-visible; the write that hit it
// is refused, never silently dropped.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database or disk is full") || strings.Contains(msg, "SQLITE_FULL") {
		return errors.Wrap(errors.ErrStoreExhausted, "local store capacity exceeded", err)
	}
	return errors.Wrap(errors.ErrDatabase, "local store operation failed", err)
}
