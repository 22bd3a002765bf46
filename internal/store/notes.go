package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/codex/internal/apperr"
	"github.com/starford/codex/internal/searchidx"
)

// CreateNote inserts a note and its shadow entry, recording day in the
// edit history. day is the caller's civil date (YYYY-MM-DD).
func (s *Store) CreateNote(ctx context.Context, n Note, day string) (int64, error) {
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			INSERT INTO note (title, author, notebook, status, content, metadata)
			VALUES (?, ?, ?, COALESCE(NULLIF(?, ''), 'active'), ?, COALESCE(NULLIF(?, ''), '{}'))
		`, n.Title, n.Author, n.Notebook, n.Status, n.Content, n.Metadata)
		if err != nil {
			return fmt.Errorf("store: insert note: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		if err := searchidx.NoteUpsert(tx, id, n.Title, n.Content); err != nil {
			return err
		}
		return searchidx.RecordEdit(tx, id, day)
	})
	return id, err
}

// UpdateNoteContent rewrites a note's searchable content. The shadow entry
// and the edit history move in the same transaction.
func (s *Store) UpdateNoteContent(ctx context.Context, id int64, title, content, day string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE note SET title = ?, content = ? WHERE id = ?`, title, content, id)
		if err != nil {
			return fmt.Errorf("store: update note: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
		}
		if err := searchidx.NoteUpsert(tx, id, title, content); err != nil {
			return err
		}
		return searchidx.RecordEdit(tx, id, day)
	})
}

// DeleteNote removes a note. Owned rows cascade; the shadow entries go in
// the same transaction so no orphaned shadow row survives the delete.
func (s *Store) DeleteNote(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		searchidx.NoteDelete(tx, id)
		res, err := tx.Exec(`DELETE FROM note WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("store: delete note: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
		}
		return nil
	})
}

// GetNote returns one note by id.
func (s *Store) GetNote(ctx context.Context, id int64) (*Note, error) {
	var (
		n                Note
		dateCreated      sql.NullString
		datePrecision    sql.NullString
		prevNote, nxNote sql.NullInt64
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, COALESCE(title, ''), COALESCE(author, ''), COALESCE(notebook, ''),
		       status, content, date_created, date_created_precision,
		       metadata, prev_note_id, next_note_id
		FROM note WHERE id = ?
	`, id).Scan(&n.ID, &n.Title, &n.Author, &n.Notebook, &n.Status, &n.Content,
		&dateCreated, &datePrecision, &n.Metadata, &prevNote, &nxNote)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: note %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get note: %w", err)
	}
	n.DateCreated = nullString(dateCreated)
	n.DateCreatedPrecision = nullString(datePrecision)
	n.PrevNoteID = nullInt64(prevNote)
	n.NextNoteID = nullInt64(nxNote)
	return &n, nil
}

// ListNotes returns notes ordered by id, newest first.
func (s *Store) ListNotes(ctx context.Context, limit, offset int) ([]Note, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, COALESCE(title, ''), status, content
		FROM note ORDER BY id DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Status, &n.Content); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// SetNoteDate records the inferred creation date with its precision tag.
func (s *Store) SetNoteDate(ctx context.Context, id int64, value, precision string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE note SET date_created = ?, date_created_precision = ? WHERE id = ?`,
			value, precision, id)
		if err != nil {
			return fmt.Errorf("store: set note date: %w", err)
		}
		return nil
	})
}

// UpsertTranscribedPage inserts or updates the transcription for
// (note, page_order), keeping its shadow entry and the note's edit history
// current. Returns the page row id.
func (s *Store) UpsertTranscribedPage(ctx context.Context, p TranscribedPage, day string) (int64, error) {
	var id int64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO transcribed_page (note_id, file_id, page_order, text, json_path, inferred_date, inferred_date_precision)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(note_id, page_order) DO UPDATE SET
				file_id                 = COALESCE(excluded.file_id, transcribed_page.file_id),
				text                    = excluded.text,
				json_path               = COALESCE(excluded.json_path, transcribed_page.json_path),
				inferred_date           = COALESCE(excluded.inferred_date, transcribed_page.inferred_date),
				inferred_date_precision = COALESCE(excluded.inferred_date_precision, transcribed_page.inferred_date_precision)
		`, p.NoteID, p.FileID, p.PageOrder, p.Text, p.JSONPath, p.InferredDate, p.InferredDatePrecision)
		if err != nil {
			return fmt.Errorf("store: upsert transcribed page: %w", err)
		}
		if err := tx.QueryRow(`SELECT id FROM transcribed_page WHERE note_id = ? AND page_order = ?`,
			p.NoteID, p.PageOrder).Scan(&id); err != nil {
			return fmt.Errorf("store: transcribed page id: %w", err)
		}
		if err := searchidx.PageUpsert(tx, id, p.NoteID, p.Text); err != nil {
			return err
		}
		return searchidx.RecordEdit(tx, p.NoteID, day)
	})
	return id, err
}

// DeleteTranscribedPage removes one transcription row with its shadow entry.
func (s *Store) DeleteTranscribedPage(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		searchidx.PageDelete(tx, id)
		res, err := tx.Exec(`DELETE FROM transcribed_page WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("store: delete transcribed page: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: transcribed page %d: %w", id, apperr.ErrNotFound)
		}
		return nil
	})
}

// NotePages returns the note's file memberships in page order.
func (s *Store) NotePages(ctx context.Context, noteID int64) ([]PageLink, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT note_id, file_id, page_order, prev_file_id, next_file_id
		FROM note_file WHERE note_id = ?
		ORDER BY page_order ASC, file_id ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("store: note pages: %w", err)
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

// EditDates returns the note's deduplicated edit history, oldest first.
func (s *Store) EditDates(ctx context.Context, noteID int64) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT d.edit_date
		FROM note_edit_date nd
		JOIN edit_date d ON d.id = nd.edit_date_id
		WHERE nd.note_id = ?
		ORDER BY d.edit_date ASC
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("store: edit dates: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
