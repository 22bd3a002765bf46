// Package tracker flips the fully_processed flag on file rows. The flag
// is a coarse pipeline gate read by the ingest watcher and the ops
// surface; it carries no judgment about transcription quality.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/codex/internal/store"
)

// Selector names the file rows a Mark call touches. Exactly one of the
// fields may be set; AllWithArtifacts selects every row that has both OCR
// artifact paths recorded.
type Selector struct {
	IDs              []int64
	Paths            []string
	AllWithArtifacts bool
}

func (sel Selector) validate() error {
	set := 0
	if len(sel.IDs) > 0 {
		set++
	}
	if len(sel.Paths) > 0 {
		set++
	}
	if sel.AllWithArtifacts {
		set++
	}
	if set != 1 {
		return fmt.Errorf("tracker: selector must name ids, paths, or all-with-artifacts")
	}
	return nil
}

// Result reports how many rows a Mark call changed versus matched.
type Result struct {
	Matched int64 `json:"matched"`
	Changed int64 `json:"changed"`
}

// Mark sets or clears fully_processed on the selected rows. Rows already
// carrying the requested value count as matched but not changed, so a
// repeated call reports zero changes.
func Mark(ctx context.Context, st *store.Store, sel Selector, processed bool) (*Result, error) {
	if err := sel.validate(); err != nil {
		return nil, err
	}
	flag := 0
	if processed {
		flag = 1
	}

	where, args := sel.clause()
	res := &Result{}
	err := st.WithTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRow(
			`SELECT COUNT(*) FROM file WHERE `+where, args...,
		).Scan(&res.Matched); err != nil {
			return fmt.Errorf("tracker: count matches: %w", err)
		}
		out, err := tx.Exec(
			`UPDATE file SET fully_processed = ? WHERE fully_processed <> ? AND `+where,
			append([]any{flag, flag}, args...)...,
		)
		if err != nil {
			return fmt.Errorf("tracker: mark files: %w", err)
		}
		res.Changed, err = out.RowsAffected()
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (sel Selector) clause() (string, []any) {
	switch {
	case len(sel.IDs) > 0:
		args := make([]any, len(sel.IDs))
		for i, id := range sel.IDs {
			args[i] = id
		}
		return "id IN (" + placeholders(len(sel.IDs)) + ")", args
	case len(sel.Paths) > 0:
		args := make([]any, len(sel.Paths))
		for i, p := range sel.Paths {
			args[i] = p
		}
		return "path IN (" + placeholders(len(sel.Paths)) + ")", args
	default:
		return "ocr_text_path IS NOT NULL AND ocr_json_path IS NOT NULL", nil
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
