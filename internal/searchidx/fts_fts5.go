//go:build sqlite_fts5

package searchidx

import (
	"context"
	"database/sql"
	"fmt"
)

// Init creates the shadow FTS5 tables for notes and transcribed pages.
func Init(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS note_fts USING fts5(
			note_id UNINDEXED,
			title,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
		CREATE VIRTUAL TABLE IF NOT EXISTS page_fts USING fts5(
			page_id UNINDEXED,
			note_id UNINDEXED,
			text,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

// NoteUpsert replaces the note's shadow entry (delete-then-reinsert).
func NoteUpsert(tx *sql.Tx, noteID int64, title, content string) error {
	_, _ = tx.Exec(`DELETE FROM note_fts WHERE note_id = ?`, noteID)
	if _, err := tx.Exec(`INSERT INTO note_fts (note_id, title, content) VALUES (?, ?, ?)`,
		noteID, title, content); err != nil {
		return fmt.Errorf("searchidx: upsert note shadow: %w", err)
	}
	return nil
}

// NoteDelete removes the note's shadow entry and those of its pages.
func NoteDelete(tx *sql.Tx, noteID int64) {
	_, _ = tx.Exec(`DELETE FROM note_fts WHERE note_id = ?`, noteID)
	_, _ = tx.Exec(`DELETE FROM page_fts WHERE note_id = ?`, noteID)
}

// PageUpsert replaces a transcribed page's shadow entry.
func PageUpsert(tx *sql.Tx, pageID, noteID int64, text string) error {
	_, _ = tx.Exec(`DELETE FROM page_fts WHERE page_id = ?`, pageID)
	if _, err := tx.Exec(`INSERT INTO page_fts (page_id, note_id, text) VALUES (?, ?, ?)`,
		pageID, noteID, text); err != nil {
		return fmt.Errorf("searchidx: upsert page shadow: %w", err)
	}
	return nil
}

// PageDelete removes a transcribed page's shadow entry.
func PageDelete(tx *sql.Tx, pageID int64) {
	_, _ = tx.Exec(`DELETE FROM page_fts WHERE page_id = ?`, pageID)
}

// RebuildAll drops and refills both shadow tables from the live rows.
// The full-rebuild strategy for when incremental maintenance is suspected
// to have drifted (or after bulk imports that bypassed the observer).
func RebuildAll(ctx context.Context, conn *sql.DB) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("searchidx: begin rebuild: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM note_fts`); err != nil {
		return fmt.Errorf("searchidx: clear note shadow: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO note_fts (note_id, title, content)
		SELECT id, COALESCE(title, ''), content FROM note
	`); err != nil {
		return fmt.Errorf("searchidx: refill note shadow: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM page_fts`); err != nil {
		return fmt.Errorf("searchidx: clear page shadow: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO page_fts (page_id, note_id, text)
		SELECT id, note_id, text FROM transcribed_page
	`); err != nil {
		return fmt.Errorf("searchidx: refill page shadow: %w", err)
	}
	return tx.Commit()
}

// Search runs an FTS5 match over notes and transcribed pages.
func Search(conn *sql.DB, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := conn.Query(`
		SELECT 'note', note_id, 0, title, snippet(note_fts, 2, '<b>', '</b>', '...', 64), rank
		FROM note_fts WHERE note_fts MATCH ?
		UNION ALL
		SELECT 'page', note_id, page_id, '', snippet(page_fts, 2, '<b>', '</b>', '...', 64), rank
		FROM page_fts WHERE page_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searchidx: search: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var rank float64
		if err := rows.Scan(&r.Kind, &r.NoteID, &r.PageID, &r.Title, &r.Snippet, &rank); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
