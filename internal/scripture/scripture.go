// Package scripture reads the external scripture corpus attached under the
// "std" schema. The corpus is independently maintained; nothing here ever
// writes to it, and nothing assumes referential integrity across the
// boundary — callers treat every lookup as fallible.
package scripture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/codex/internal/apperr"
)

// Ref is the (volume, book, chapter, verse) ancestry of one verse id.
// ChapterNumber is text: front matter imports as chapters like
// "Introduction".
type Ref struct {
	Volume        string
	Book          string
	ChapterNumber string
	VerseNumber   int64
}

// Reader resolves verse ids against the attached corpus.
type Reader struct {
	conn *sql.DB
}

// NewReader wraps a connection that already has the corpus attached as std.
func NewReader(conn *sql.DB) *Reader {
	return &Reader{conn: conn}
}

// VerseExists reports whether id resolves in std.verse.
func (r *Reader) VerseExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := r.conn.QueryRowContext(ctx, `SELECT 1 FROM std.verse WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scripture: verse exists: %w", err)
	}
	return true, nil
}

// Ancestry resolves a verse id to its full ancestry.
func (r *Reader) Ancestry(ctx context.Context, id int64) (Ref, error) {
	var ref Ref
	err := r.conn.QueryRowContext(ctx, `
		SELECT vo.VolumeName, b.BookName, c.ChapterNumber, v.VerseNumber
		FROM std.verse v
		JOIN std.chapter c ON c.id = v.fkChapter
		JOIN std.book b    ON b.id = c.fkBook
		JOIN std.volume vo ON vo.id = b.fkVolume
		WHERE v.id = ?
	`, id).Scan(&ref.Volume, &ref.Book, &ref.ChapterNumber, &ref.VerseNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return Ref{}, fmt.Errorf("scripture: verse %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Ref{}, fmt.Errorf("scripture: ancestry: %w", err)
	}
	return ref, nil
}
