package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/codex/internal/apperr"
	"github.com/starford/codex/internal/searchidx"
)

// Store wraps the notes database. The scripture corpus is a separate,
// independently maintained database attached read-only under the "std"
// schema name; it is never written through this handle.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the notes database and applies the schema.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w: %v", apperr.ErrStoreUnavailable, err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w: %v", apperr.ErrStoreUnavailable, err)
	}
	// The chain rebuild updates rows holding transient duplicate pointer
	// values mid-pass; a single connection keeps every unit of work on one
	// writer, matching the single-writer model.
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	if err := searchidx.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply shadow schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// AttachScriptures attaches the external scripture database read-only as
// "std". The verse relation is validated by the passage validator, never
// by a native constraint, so a missing file is the only fatal condition.
func (s *Store) AttachScriptures(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("store: scripture db %s: %w", path, apperr.ErrStoreUnavailable)
	}
	uri := fmt.Sprintf("file:%s?mode=ro", path)
	if _, err := s.conn.Exec(`ATTACH DATABASE ? AS std`, uri); err != nil {
		return fmt.Errorf("store: attach scripture db: %w: %v", apperr.ErrStoreUnavailable, err)
	}
	return nil
}

// DetachScriptures removes the "std" attachment.
func (s *Store) DetachScriptures() error {
	if _, err := s.conn.Exec(`DETACH DATABASE std`); err != nil {
		return fmt.Errorf("store: detach scripture db: %w", err)
	}
	return nil
}

// DB returns the underlying sql.DB for read queries by other packages.
func (s *Store) DB() *sql.DB {
	return s.conn
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

const (
	busyRetries = 5
	busyBackoff = 25 * time.Millisecond
)

// WithTx runs fn inside a transaction scoped to one unit of work: fully
// applied on success, fully rolled back on any error. A locked store is
// retried a bounded number of times with backoff before surfacing
// apperr.ErrWriteConflict.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < busyRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = s.runTx(ctx, fn)
		if lastErr == nil || !isBusy(lastErr) {
			return lastErr
		}
		select {
		case <-time.After(busyBackoff << attempt):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("store: %w: %v", apperr.ErrWriteConflict, lastErr)
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
