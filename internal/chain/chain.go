// Package chain rebuilds the doubly-linked page chains from the
// authoritative page_order keys.
//
// The chain is a derived structure: page_order is the source of truth and
// the prev/next pointers are recomputed by a linear pass per note, never
// maintained incrementally. Anomalies the pass cannot resolve on its own
// (duplicate order keys, pointers escaping the note's page set) are
// reported, not repaired.
package chain

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/starford/codex/internal/store"
)

// Chain tables.
const (
	TableNoteFile        = "note_file"
	TableTranscribedPage = "transcribed_page"
)

// Anomaly kinds.
const (
	AnomalyDuplicateOrder = "duplicate-order"
	AnomalyOrphanPointer  = "orphan-pointer"
)

// Options selects the scope and mode of a rebuild.
type Options struct {
	NoteID      int64 // 0 means all notes
	OnlyMissing bool  // touch only rows whose pointers are null or inconsistent
	DryRun      bool  // report intended changes without writing
}

// Anomaly is a pre-existing inconsistency reported alongside the rebuild.
type Anomaly struct {
	Table  string `json:"table"`
	NoteID int64  `json:"note_id"`
	RowID  int64  `json:"row_id"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// Change is one intended pointer update (reported in dry-run mode).
type Change struct {
	Table  string `json:"table"`
	NoteID int64  `json:"note_id"`
	RowID  int64  `json:"row_id"`
	Prev   *int64 `json:"prev"`
	Next   *int64 `json:"next"`
}

// Result summarizes a rebuild pass.
type Result struct {
	NotesExamined int       `json:"notes_examined"`
	RowsExamined  int       `json:"rows_examined"`
	RowsUpdated   int       `json:"rows_updated"`
	RowsUnchanged int       `json:"rows_unchanged"`
	Anomalies     []Anomaly `json:"anomalies,omitempty"`
	Planned       []Change  `json:"planned,omitempty"`
}

// Rebuild recomputes the prev/next chains for one note or every note.
// Each note is one unit of work: its updates commit or roll back together,
// and cancellation is honored between notes.
func Rebuild(ctx context.Context, st *store.Store, opts Options) (*Result, error) {
	noteIDs, err := scopeNoteIDs(ctx, st.DB(), opts.NoteID)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, noteID := range noteIDs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := rebuildNote(ctx, st, noteID, opts, res); err != nil {
			return res, fmt.Errorf("chain: note %d: %w", noteID, err)
		}
		res.NotesExamined++
	}
	return res, nil
}

func scopeNoteIDs(ctx context.Context, conn *sql.DB, noteID int64) ([]int64, error) {
	if noteID != 0 {
		return []int64{noteID}, nil
	}
	rows, err := conn.QueryContext(ctx, `SELECT id FROM note ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("chain: list notes: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func rebuildNote(ctx context.Context, st *store.Store, noteID int64, opts Options, res *Result) error {
	for _, tbl := range []tableSpec{noteFileSpec, transcribedPageSpec} {
		pages, err := fetchPages(ctx, st.DB(), tbl, noteID)
		if err != nil {
			return err
		}
		changes, anomalies := plan(pages, opts.OnlyMissing)

		res.RowsExamined += len(pages)
		res.RowsUnchanged += len(pages) - len(changes)
		for _, a := range anomalies {
			a.Table = tbl.name
			a.NoteID = noteID
			res.Anomalies = append(res.Anomalies, a)
		}

		if opts.DryRun {
			for _, c := range changes {
				res.Planned = append(res.Planned, Change{
					Table: tbl.name, NoteID: noteID, RowID: c.id, Prev: c.prev, Next: c.next,
				})
			}
			continue
		}
		if len(changes) == 0 {
			continue
		}
		if err := applyChanges(ctx, st, tbl, noteID, changes); err != nil {
			return err
		}
		res.RowsUpdated += len(changes)
	}
	return nil
}

// applyChanges writes the new pointers in two phases inside one
// transaction: first nulling the pointers of every changing row, then
// setting the final values. The null phase keeps the unique next-pointer
// indexes satisfied while stale and fresh values coexist mid-pass.
func applyChanges(ctx context.Context, st *store.Store, tbl tableSpec, noteID int64, changes []pointerChange) error {
	return st.WithTx(ctx, func(tx *sql.Tx) error {
		for _, c := range changes {
			if _, err := tx.Exec(tbl.clearSQL, noteID, c.id); err != nil {
				return fmt.Errorf("clear pointers row %d: %w", c.id, err)
			}
		}
		for _, c := range changes {
			if _, err := tx.Exec(tbl.updateSQL, c.prev, c.next, noteID, c.id); err != nil {
				return fmt.Errorf("set pointers row %d: %w", c.id, err)
			}
		}
		return nil
	})
}

type tableSpec struct {
	name      string
	selectSQL string
	clearSQL  string
	updateSQL string
}

var noteFileSpec = tableSpec{
	name: TableNoteFile,
	selectSQL: `SELECT file_id, page_order, prev_file_id, next_file_id
		FROM note_file WHERE note_id = ?
		ORDER BY page_order ASC, file_id ASC`,
	clearSQL: `UPDATE note_file SET prev_file_id = NULL, next_file_id = NULL
		WHERE note_id = ? AND file_id = ?`,
	updateSQL: `UPDATE note_file SET prev_file_id = ?, next_file_id = ?
		WHERE note_id = ? AND file_id = ?`,
}

var transcribedPageSpec = tableSpec{
	name: TableTranscribedPage,
	selectSQL: `SELECT id, page_order, prev_id, next_id
		FROM transcribed_page WHERE note_id = ?
		ORDER BY page_order ASC, id ASC`,
	clearSQL: `UPDATE transcribed_page SET prev_id = NULL, next_id = NULL
		WHERE note_id = ? AND id = ?`,
	updateSQL: `UPDATE transcribed_page SET prev_id = ?, next_id = ?
		WHERE note_id = ? AND id = ?`,
}

type pageRow struct {
	id         int64
	order      int64
	prev, next *int64
}

func fetchPages(ctx context.Context, conn *sql.DB, tbl tableSpec, noteID int64) ([]pageRow, error) {
	rows, err := conn.QueryContext(ctx, tbl.selectSQL, noteID)
	if err != nil {
		return nil, fmt.Errorf("fetch %s pages: %w", tbl.name, err)
	}
	defer rows.Close()

	var out []pageRow
	for rows.Next() {
		var (
			p          pageRow
			prev, next sql.NullInt64
		)
		if err := rows.Scan(&p.id, &p.order, &prev, &next); err != nil {
			return nil, err
		}
		if prev.Valid {
			v := prev.Int64
			p.prev = &v
		}
		if next.Valid {
			v := next.Int64
			p.next = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
