// Package passage validates scripture references and renders citation
// labels. Passage endpoints are weak references into an external corpus,
// so every check here resolves them explicitly instead of trusting the
// rows to line up.
package passage

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/codex/internal/apperr"
	"github.com/starford/codex/internal/scripture"
	"github.com/starford/codex/internal/store"
)

// Passage statuses.
const (
	StatusValid          = "valid"
	StatusDanglingStart  = "dangling-start"
	StatusDanglingEnd    = "dangling-end"
	StatusMalformedRange = "malformed-range"
)

// Report summarizes a validation pass over the passage table.
type Report struct {
	Total  int                `json:"total"`
	Counts map[string]int     `json:"counts"`
	IDs    map[string][]int64 `json:"ids"`
}

// Validate classifies every passage against the attached corpus. A passage
// whose start does not resolve reports dangling-start even when the end is
// missing too; the start is checked first and one finding per passage is
// enough to flag it for repair.
func Validate(ctx context.Context, st *store.Store, reader *scripture.Reader) (*Report, error) {
	// Drain the cursor before resolving endpoints: the store holds a
	// single connection, and a lookup issued while the cursor is open
	// would wait on it forever.
	passages, err := listPassages(ctx, st, `SELECT id, start_verse_id, end_verse_id FROM passage ORDER BY id`)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Counts: map[string]int{},
		IDs:    map[string][]int64{},
	}
	for _, p := range passages {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		status, err := Classify(ctx, reader, p)
		if err != nil {
			return nil, err
		}
		rep.Total++
		rep.Counts[status]++
		if status != StatusValid {
			rep.IDs[status] = append(rep.IDs[status], p.ID)
		}
	}
	return rep, nil
}

func listPassages(ctx context.Context, st *store.Store, query string) ([]store.Passage, error) {
	rows, err := st.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("passage: list: %w", err)
	}
	defer rows.Close()

	var out []store.Passage
	for rows.Next() {
		var p store.Passage
		if err := rows.Scan(&p.ID, &p.StartVerseID, &p.EndVerseID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Classify resolves one passage's endpoints and returns its status.
func Classify(ctx context.Context, reader *scripture.Reader, p store.Passage) (string, error) {
	if p.StartVerseID > p.EndVerseID {
		return StatusMalformedRange, nil
	}
	ok, err := reader.VerseExists(ctx, p.StartVerseID)
	if err != nil {
		return "", err
	}
	if !ok {
		return StatusDanglingStart, nil
	}
	ok, err = reader.VerseExists(ctx, p.EndVerseID)
	if err != nil {
		return "", err
	}
	if !ok {
		return StatusDanglingEnd, nil
	}
	return StatusValid, nil
}

// FillOptions selects the scope of a citation fill.
type FillOptions struct {
	Force  bool // rewrite labels that are already present
	DryRun bool // report intended labels without writing
}

// PlannedCitation is one intended label (reported in dry-run mode).
type PlannedCitation struct {
	PassageID int64  `json:"passage_id"`
	Citation  string `json:"citation"`
}

// FillReport summarizes a citation fill.
type FillReport struct {
	Examined int               `json:"examined"`
	Filled   int               `json:"filled"`
	Skipped  int               `json:"skipped"`
	Planned  []PlannedCitation `json:"planned,omitempty"`
}

// FillCitations renders and stores the citation label of every passage
// missing one. Passages with a dangling endpoint are skipped and keep a
// null label. Each label commits on its own, so an interrupted fill
// resumes where it stopped: already-labeled rows are not selected again.
func FillCitations(ctx context.Context, st *store.Store, reader *scripture.Reader, opts FillOptions) (*FillReport, error) {
	query := `SELECT id, start_verse_id, end_verse_id FROM passage
		WHERE citation IS NULL OR TRIM(citation) = '' ORDER BY id`
	if opts.Force {
		query = `SELECT id, start_verse_id, end_verse_id FROM passage ORDER BY id`
	}
	passages, err := listPassages(ctx, st, query)
	if err != nil {
		return nil, err
	}

	rep := &FillReport{}
	for _, p := range passages {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Examined++
		label, err := renderLabel(ctx, reader, p)
		if errors.Is(err, apperr.ErrNotFound) {
			rep.Skipped++
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("passage %d: %w", p.ID, err)
		}
		if opts.DryRun {
			rep.Planned = append(rep.Planned, PlannedCitation{PassageID: p.ID, Citation: label})
			continue
		}
		if err := st.SetPassageCitation(ctx, p.ID, label); err != nil {
			return rep, err
		}
		rep.Filled++
	}
	return rep, nil
}

func renderLabel(ctx context.Context, reader *scripture.Reader, p store.Passage) (string, error) {
	start, err := reader.Ancestry(ctx, p.StartVerseID)
	if err != nil {
		return "", err
	}
	end, err := reader.Ancestry(ctx, p.EndVerseID)
	if err != nil {
		return "", err
	}
	return FormatCitation(start, end), nil
}

// FormatCitation renders the label for a verse range. The range collapses
// from the right: shared book and chapter drop out of the end reference,
// and a single verse renders with no range at all. The separator is an
// en dash.
//
//	Alma 32:21            single verse
//	Alma 32:21–23         same chapter
//	Alma 32:21–33:2       same book
//	Alma 32:21–Ether 3:4  cross-book
func FormatCitation(start, end scripture.Ref) string {
	head := fmt.Sprintf("%s %s:%d", start.Book, start.ChapterNumber, start.VerseNumber)
	switch {
	case start.Book == end.Book && start.ChapterNumber == end.ChapterNumber && start.VerseNumber == end.VerseNumber:
		return head
	case start.Book == end.Book && start.ChapterNumber == end.ChapterNumber:
		return fmt.Sprintf("%s–%d", head, end.VerseNumber)
	case start.Book == end.Book:
		return fmt.Sprintf("%s–%s:%d", head, end.ChapterNumber, end.VerseNumber)
	default:
		return fmt.Sprintf("%s–%s %s:%d", head, end.Book, end.ChapterNumber, end.VerseNumber)
	}
}
