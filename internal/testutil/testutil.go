// Package testutil provides shared test helpers for setting up notes
// stores and a seeded scripture corpus.
package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/codex/internal/store"
)

// TestStore creates a temporary notes database that is automatically
// cleaned up.
func TestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.db")
	st, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// SeedVerse places one verse in a scripture corpus being built by
// TestScriptures.
type SeedVerse struct {
	ID      int64
	Volume  string
	Book    string
	Chapter string
	Verse   int64
}

// TestScriptures writes a temporary corpus database holding the given
// verses and returns its path. Ancestor rows (volume, book, chapter) are
// created on demand.
func TestScriptures(t *testing.T, verses []SeedVerse) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scriptures.db")
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	schema := `
		CREATE TABLE volume (id INTEGER PRIMARY KEY, VolumeName TEXT NOT NULL UNIQUE);
		CREATE TABLE book (id INTEGER PRIMARY KEY, fkVolume INTEGER NOT NULL, BookName TEXT NOT NULL);
		CREATE TABLE chapter (id INTEGER PRIMARY KEY, fkBook INTEGER NOT NULL, ChapterNumber TEXT NOT NULL);
		CREATE TABLE verse (id INTEGER PRIMARY KEY, fkChapter INTEGER NOT NULL, VerseNumber INTEGER NOT NULL);
	`
	if _, err := conn.Exec(schema); err != nil {
		t.Fatal(err)
	}

	volumes := map[string]int64{}
	books := map[string]int64{}
	chapters := map[string]int64{}
	for _, v := range verses {
		volID, ok := volumes[v.Volume]
		if !ok {
			volID = insertRow(t, conn, `INSERT INTO volume (VolumeName) VALUES (?)`, v.Volume)
			volumes[v.Volume] = volID
		}
		bookKey := fmt.Sprintf("%d/%s", volID, v.Book)
		bookID, ok := books[bookKey]
		if !ok {
			bookID = insertRow(t, conn, `INSERT INTO book (fkVolume, BookName) VALUES (?, ?)`, volID, v.Book)
			books[bookKey] = bookID
		}
		chapKey := fmt.Sprintf("%d/%s", bookID, v.Chapter)
		chapID, ok := chapters[chapKey]
		if !ok {
			chapID = insertRow(t, conn, `INSERT INTO chapter (fkBook, ChapterNumber) VALUES (?, ?)`, bookID, v.Chapter)
			chapters[chapKey] = chapID
		}
		insertRow(t, conn, `INSERT INTO verse (id, fkChapter, VerseNumber) VALUES (?, ?, ?)`, v.ID, chapID, v.Verse)
	}
	return path
}

// AttachedStore returns a store with a seeded corpus already attached.
func AttachedStore(t *testing.T, verses []SeedVerse) *store.Store {
	t.Helper()
	st := TestStore(t)
	if err := st.AttachScriptures(TestScriptures(t, verses)); err != nil {
		t.Fatal(err)
	}
	return st
}

// WriteFile writes contents under dir and returns the full path.
func WriteFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func insertRow(t *testing.T, conn *sql.DB, query string, args ...any) int64 {
	t.Helper()
	res, err := conn.Exec(query, args...)
	if err != nil {
		t.Fatal(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatal(err)
	}
	return id
}
