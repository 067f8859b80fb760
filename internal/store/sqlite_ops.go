// sqlite_ops.go provides SQLite connection management and low-level operations.
//
// Separated to isolate SQLite-specific concerns (pragmas, connection pooling,
// driver registration) from the typed query helpers. This is the only file
// that imports the SQLite driver.
//
// Design: WAL mode with busy timeout balances concurrency and durability.
// WAL allows concurrent readers during writes, which the importer's batch
// mode relies on: phase one hashes and extracts in parallel while phase two
// writes are serialized through the single-writer engine.

package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"fmt"
	"strings"

	// Register sqlite driver
	_ "modernc.org/sqlite"
)

// Options configures the SQLite connection. Values come from the
// database.* section of config; zero values fall back to defaults
// matching config's own.
type Options struct {
	JournalMode    string // database.journal_mode, default WAL
	SyncMode       string // database.sync_mode, default NORMAL
	MaxConnections int    // database.max_connections, pool upper bound
	BusyTimeout    int    // database.busy_timeout in milliseconds
}

// Store wraps the SQLite connection pool behind typed query helpers.
// All component SQL goes through parameterized statements on this type.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database file at `path` and returns a configured
// Store. The caller should call Close on the returned store.
func Open(path string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	journal := opts.JournalMode
	if journal == "" {
		journal = "WAL"
	}
	sync := opts.SyncMode
	if sync == "" {
		sync = "NORMAL"
	}
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5000
	}

	// Pragma order matters: journal_mode first, since synchronous
	// guarantees depend on it.
	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode=%s", journal),
		fmt.Sprintf("PRAGMA busy_timeout=%d", busy),
		fmt.Sprintf("PRAGMA synchronous=%s", sync),
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(p), err)
		}
	}

	if opts.MaxConnections > 0 {
		db.SetMaxOpenConns(opts.MaxConnections)
	}

	return &Store{db: db}, nil
}

// Init creates tables and indexes if they don't exist. Safe to call
// multiple times; every schema file uses IF NOT EXISTS.
func (s *Store) Init() error {
	return execSchema(s.db)
}

// Close releases the database connection. Call before program exit to
// ensure all pending writes are flushed.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for callers that need raw access,
// such as the search planner executing built SQL.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Checkpoint flushes the WAL into the main database file. Useful before
// backing up or copying the store file elsewhere.
func (s *Store) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	if err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// Vacuum rebuilds the database file, reclaiming space left by deleted
// rows. Runs outside any transaction (SQLite requirement).
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// Queryer abstracts *sql.DB and *sql.Tx so the typed helpers can run both
// standalone and inside a caller's transaction. The importer composes
// file, author, tag, FTS and history writes into one transaction this way.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner abstracts sql.Row and sql.Rows, enabling a single scan function
// to handle both single-row and multi-row queries.
type scanner interface {
	Scan(dest ...any) error
}

// Tx executes fn within a database transaction, handling
// Begin/Commit/Rollback automatically. Rollback is deferred and is a
// no-op after a successful commit, so cleanup runs in every exit path
// including panics.
func (s *Store) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GenID creates a unique 12-character identifier using crypto/rand.
// Used for file, author and tag ids to enable direct lookups.
func GenID() (string, error) {
	b := make([]byte, 7) // 7 bytes = 12 base32 chars (padding-free)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)), nil
}
