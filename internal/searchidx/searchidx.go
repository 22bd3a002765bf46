// Package searchidx keeps the full-text shadow structures and the edit-date
// history in lock-step with content mutations.
//
// Every function that writes takes the caller's *sql.Tx: the observer runs
// inside the same transaction as the content mutation it shadows, so the
// shadow rows can never drift from the live rows. Store-level triggers are
// deliberately not used; the invariant lives in one code path.
package searchidx

import (
	"database/sql"
	"fmt"
)

// Result represents one search hit. Kind is "note" or "page".
type Result struct {
	Kind    string `json:"kind"`
	NoteID  int64  `json:"note_id"`
	PageID  int64  `json:"page_id,omitempty"`
	Title   string `json:"title,omitempty"`
	Snippet string `json:"snippet"`
}

// RecordEdit appends day (a YYYY-MM-DD civil date supplied by the caller,
// never read from a clock here) to the note's edit history. Idempotent per
// (note, day): repeated edits on one day keep exactly one link.
func RecordEdit(tx *sql.Tx, noteID int64, day string) error {
	if _, err := tx.Exec(`INSERT OR IGNORE INTO edit_date (edit_date) VALUES (DATE(?))`, day); err != nil {
		return fmt.Errorf("searchidx: insert edit date: %w", err)
	}
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO note_edit_date (note_id, edit_date_id)
		SELECT ?, id FROM edit_date WHERE edit_date = DATE(?)
	`, noteID, day)
	if err != nil {
		return fmt.Errorf("searchidx: link edit date: %w", err)
	}
	return nil
}
