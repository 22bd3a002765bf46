//go:build !sqlite_fts5

package searchidx

import (
	"context"
	"database/sql"
	"fmt"
)

func Init(_ *sql.DB) error {
	// FTS5 not compiled in; search falls back to LIKE over the live rows.
	return nil
}

func NoteUpsert(_ *sql.Tx, _ int64, _, _ string) error { return nil }

func NoteDelete(_ *sql.Tx, _ int64) {}

func PageUpsert(_ *sql.Tx, _, _ int64, _ string) error { return nil }

func PageDelete(_ *sql.Tx, _ int64) {}

func RebuildAll(_ context.Context, _ *sql.DB) error { return nil }

// Search performs a LIKE-based search over note and transcribed-page
// content (fallback when FTS5 is not compiled in).
func Search(conn *sql.DB, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := conn.Query(`
		SELECT 'note', id, 0, COALESCE(title, ''), substr(content, 1, 200)
		FROM note WHERE title LIKE ? OR content LIKE ?
		UNION ALL
		SELECT 'page', note_id, id, '', substr(text, 1, 200)
		FROM transcribed_page WHERE text LIKE ?
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("searchidx: search: %w", err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Kind, &r.NoteID, &r.PageID, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
