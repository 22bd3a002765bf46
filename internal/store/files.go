package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/codex/internal/apperr"
)

// UpsertFile inserts or updates a file row keyed by path and returns its id.
// Existing artifact paths and the processed flag are left untouched: those
// are owned by the tracker and the ingest watcher.
func (s *Store) UpsertFile(ctx context.Context, f File) (int64, error) {
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO file (path, original_filename, content_hash, width, height, format, captured_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET
				original_filename = COALESCE(file.original_filename, excluded.original_filename),
				content_hash      = COALESCE(NULLIF(excluded.content_hash, ''), file.content_hash),
				width             = COALESCE(NULLIF(excluded.width, 0), file.width),
				height            = COALESCE(NULLIF(excluded.height, 0), file.height),
				format            = COALESCE(excluded.format, file.format),
				captured_at       = COALESCE(excluded.captured_at, file.captured_at)
		`, f.Path, f.OriginalFilename, f.ContentHash, f.Width, f.Height, nilIfEmpty(f.Format), f.CapturedAt)
		if err != nil {
			return fmt.Errorf("store: upsert file: %w", err)
		}
		return tx.QueryRow(`SELECT id FROM file WHERE path = ?`, f.Path).Scan(&id)
	})
	return id, err
}

// FileByPath returns the file row for path.
func (s *Store) FileByPath(ctx context.Context, path string) (*File, error) {
	var (
		f          File
		processed  int64
		text, json sql.NullString
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, path, COALESCE(original_filename, ''), COALESCE(content_hash, ''),
		       COALESCE(width, 0), COALESCE(height, 0), COALESCE(format, ''),
		       ocr_text_path, ocr_json_path, fully_processed
		FROM file WHERE path = ?
	`, path).Scan(&f.ID, &f.Path, &f.OriginalFilename, &f.ContentHash,
		&f.Width, &f.Height, &f.Format, &text, &json, &processed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: file %s: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: file by path: %w", err)
	}
	f.OCRTextPath = nullString(text)
	f.OCRJSONPath = nullString(json)
	f.FullyProcessed = processed != 0
	return &f, nil
}

// FileByName returns the file row whose path ends with the given base
// name. Scans land under dated subdirectories, so the base name is the
// stable key the OCR pipeline shares with the store.
func (s *Store) FileByName(ctx context.Context, name string) (*File, error) {
	var path string
	err := s.conn.QueryRowContext(ctx, `
		SELECT path FROM file WHERE path = ? OR path LIKE '%/' || ?
		ORDER BY id LIMIT 1
	`, name, name).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: file named %s: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: file by name: %w", err)
	}
	return s.FileByPath(ctx, path)
}

// FileMemberships returns the note memberships of one file with their
// order keys.
func (s *Store) FileMemberships(ctx context.Context, fileID int64) ([]PageLink, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT note_id, file_id, page_order, prev_file_id, next_file_id
		FROM note_file WHERE file_id = ?
		ORDER BY note_id
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("store: file memberships: %w", err)
	}
	defer rows.Close()

	var out []PageLink
	for rows.Next() {
		var (
			p          PageLink
			prev, next sql.NullInt64
		)
		if err := rows.Scan(&p.NoteID, &p.FileID, &p.PageOrder, &prev, &next); err != nil {
			return nil, err
		}
		p.PrevFileID = nullInt64(prev)
		p.NextFileID = nullInt64(next)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetOCRArtifacts records artifact paths on a file row. Nil arguments leave
// the stored value alone; the processed flag is not touched here.
func (s *Store) SetOCRArtifacts(ctx context.Context, fileID int64, textPath, jsonPath *string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE file SET
				ocr_text_path = COALESCE(?, ocr_text_path),
				ocr_json_path = COALESCE(?, ocr_json_path)
			WHERE id = ?
		`, textPath, jsonPath, fileID)
		if err != nil {
			return fmt.Errorf("store: set ocr artifacts: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: file %d: %w", fileID, apperr.ErrNotFound)
		}
		return nil
	})
}

// LinkNoteFile adds a page membership with its authoritative order key.
// Chain pointers start null; the chain builder derives them.
func (s *Store) LinkNoteFile(ctx context.Context, noteID, fileID, pageOrder int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO note_file (note_id, file_id, page_order) VALUES (?, ?, ?)
		`, noteID, fileID, pageOrder)
		if err != nil {
			return fmt.Errorf("store: link note file: %w", err)
		}
		return nil
	})
}

// Counts returns entity totals for the ops status surface.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, 6)
	for _, q := range []struct {
		key string
		sql string
	}{
		{"notes", `SELECT COUNT(*) FROM note`},
		{"files", `SELECT COUNT(*) FROM file`},
		{"files_processed", `SELECT COUNT(*) FROM file WHERE fully_processed = 1`},
		{"pages", `SELECT COUNT(*) FROM note_file`},
		{"transcribed_pages", `SELECT COUNT(*) FROM transcribed_page`},
		{"passages", `SELECT COUNT(*) FROM passage`},
	} {
		var n int64
		if err := s.conn.QueryRowContext(ctx, q.sql).Scan(&n); err != nil {
			return nil, fmt.Errorf("store: count %s: %w", q.key, err)
		}
		out[q.key] = n
	}
	return out, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
