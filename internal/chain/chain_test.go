package chain

import (
	"context"
	"testing"

	"github.com/starford/codex/internal/store"
	"github.com/starford/codex/internal/testutil"
)

func seedNoteWithPages(t *testing.T, st *store.Store, orders []int64) (int64, []int64) {
	t.Helper()
	ctx := context.Background()
	noteID, err := st.CreateNote(ctx, store.Note{Title: "walk", Content: "body"}, "2026-01-05")
	if err != nil {
		t.Fatal(err)
	}
	fileIDs := make([]int64, len(orders))
	for i, order := range orders {
		id, err := st.UpsertFile(ctx, store.File{Path: t.TempDir() + "/" + string(rune('a'+i)) + ".png"})
		if err != nil {
			t.Fatal(err)
		}
		if err := st.LinkNoteFile(ctx, noteID, id, order); err != nil {
			t.Fatal(err)
		}
		fileIDs[i] = id
	}
	return noteID, fileIDs
}

func pagePointers(t *testing.T, st *store.Store, noteID int64) map[int64][2]*int64 {
	t.Helper()
	pages, err := st.NotePages(context.Background(), noteID)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[int64][2]*int64, len(pages))
	for _, p := range pages {
		out[p.FileID] = [2]*int64{p.PrevFileID, p.NextFileID}
	}
	return out
}

func wantPointer(t *testing.T, got *int64, want *int64, label string) {
	t.Helper()
	switch {
	case want == nil && got != nil:
		t.Errorf("%s: got %d, want null", label, *got)
	case want != nil && got == nil:
		t.Errorf("%s: got null, want %d", label, *want)
	case want != nil && got != nil && *want != *got:
		t.Errorf("%s: got %d, want %d", label, *got, *want)
	}
}

func TestRebuildOrdersByPageOrder(t *testing.T) {
	st := testutil.TestStore(t)
	// Insert in scrambled order: orders 3, 1, 2.
	noteID, files := seedNoteWithPages(t, st, []int64{3, 1, 2})

	res, err := Rebuild(context.Background(), st, Options{NoteID: noteID})
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsUpdated != 3 {
		t.Errorf("rows updated = %d, want 3", res.RowsUpdated)
	}
	if len(res.Anomalies) != 0 {
		t.Errorf("unexpected anomalies: %+v", res.Anomalies)
	}

	// Chain must read files[1] -> files[2] -> files[0].
	ptrs := pagePointers(t, st, noteID)
	wantPointer(t, ptrs[files[1]][0], nil, "first.prev")
	wantPointer(t, ptrs[files[1]][1], &files[2], "first.next")
	wantPointer(t, ptrs[files[2]][0], &files[1], "mid.prev")
	wantPointer(t, ptrs[files[2]][1], &files[0], "mid.next")
	wantPointer(t, ptrs[files[0]][0], &files[2], "last.prev")
	wantPointer(t, ptrs[files[0]][1], nil, "last.next")
}

func TestRebuildIsIdempotent(t *testing.T) {
	st := testutil.TestStore(t)
	noteID, _ := seedNoteWithPages(t, st, []int64{10, 20, 30})

	if _, err := Rebuild(context.Background(), st, Options{NoteID: noteID}); err != nil {
		t.Fatal(err)
	}
	res, err := Rebuild(context.Background(), st, Options{NoteID: noteID})
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsUpdated != 0 {
		t.Errorf("second run updated %d rows, want 0", res.RowsUpdated)
	}
	if res.RowsUnchanged != 3 {
		t.Errorf("second run unchanged = %d, want 3", res.RowsUnchanged)
	}
}

func TestRebuildOnlyMissingPreservesCompleteChains(t *testing.T) {
	st := testutil.TestStore(t)
	noteID, files := seedNoteWithPages(t, st, []int64{1, 2, 3})
	ctx := context.Background()

	if _, err := Rebuild(ctx, st, Options{NoteID: noteID}); err != nil {
		t.Fatal(err)
	}

	// Damage the chain by hand: files[1] loses its next pointer, files[0]
	// gains a wrong prev pointer that still lands inside the page set.
	if _, err := st.DB().Exec(
		`UPDATE note_file SET next_file_id = NULL WHERE note_id = ? AND file_id = ?`,
		noteID, files[1]); err != nil {
		t.Fatal(err)
	}
	if _, err := st.DB().Exec(
		`UPDATE note_file SET prev_file_id = ? WHERE note_id = ? AND file_id = ?`,
		files[2], noteID, files[0]); err != nil {
		t.Fatal(err)
	}

	res, err := Rebuild(ctx, st, Options{NoteID: noteID, OnlyMissing: true})
	if err != nil {
		t.Fatal(err)
	}
	// files[1] must be completed; files[0] is filled-in (wrongly, but
	// within the set) and is preserved.
	if res.RowsUpdated != 1 {
		t.Fatalf("only-missing updated %d rows, want 1", res.RowsUpdated)
	}
	ptrs := pagePointers(t, st, noteID)
	wantPointer(t, ptrs[files[1]][1], &files[2], "repaired.next")
	wantPointer(t, ptrs[files[0]][0], &files[2], "preserved.prev")

	// A full rebuild straightens the rest.
	if _, err := Rebuild(ctx, st, Options{NoteID: noteID}); err != nil {
		t.Fatal(err)
	}
	ptrs = pagePointers(t, st, noteID)
	wantPointer(t, ptrs[files[0]][0], nil, "full.first.prev")
	wantPointer(t, ptrs[files[0]][1], &files[1], "full.first.next")
}

func TestRebuildOnlyMissingRepairsCollidingStalePointer(t *testing.T) {
	st := testutil.TestStore(t)
	noteID, files := seedNoteWithPages(t, st, []int64{1, 2, 3})
	ctx := context.Background()

	if _, err := Rebuild(ctx, st, Options{NoteID: noteID}); err != nil {
		t.Fatal(err)
	}

	// First page loses both pointers; last page's next is bent onto the
	// middle page. Completing the first page writes that same next value,
	// so the stale row must be pulled into the repair, not collide with it.
	if _, err := st.DB().Exec(
		`UPDATE note_file SET prev_file_id = NULL, next_file_id = NULL WHERE note_id = ? AND file_id = ?`,
		noteID, files[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := st.DB().Exec(
		`UPDATE note_file SET next_file_id = ? WHERE note_id = ? AND file_id = ?`,
		files[1], noteID, files[2]); err != nil {
		t.Fatal(err)
	}

	res, err := Rebuild(ctx, st, Options{NoteID: noteID, OnlyMissing: true})
	if err != nil {
		t.Fatalf("only-missing rebuild failed: %v", err)
	}
	if res.RowsUpdated != 2 {
		t.Errorf("rows updated = %d, want 2", res.RowsUpdated)
	}

	ptrs := pagePointers(t, st, noteID)
	wantPointer(t, ptrs[files[0]][0], nil, "first.prev")
	wantPointer(t, ptrs[files[0]][1], &files[1], "first.next")
	wantPointer(t, ptrs[files[2]][0], &files[1], "last.prev")
	wantPointer(t, ptrs[files[2]][1], nil, "last.next")
}

func TestRebuildDryRunWritesNothing(t *testing.T) {
	st := testutil.TestStore(t)
	noteID, files := seedNoteWithPages(t, st, []int64{2, 1})

	res, err := Rebuild(context.Background(), st, Options{NoteID: noteID, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsUpdated != 0 {
		t.Errorf("dry-run updated %d rows", res.RowsUpdated)
	}
	if len(res.Planned) != 2 {
		t.Fatalf("planned %d changes, want 2", len(res.Planned))
	}
	ptrs := pagePointers(t, st, noteID)
	wantPointer(t, ptrs[files[0]][0], nil, "untouched.prev")
	wantPointer(t, ptrs[files[0]][1], nil, "untouched.next")
}

func TestRebuildReportsDuplicateOrder(t *testing.T) {
	st := testutil.TestStore(t)
	noteID, files := seedNoteWithPages(t, st, []int64{1, 2})

	// Imports from untrusted tooling can bypass the order index; simulate
	// one by dropping it and colliding the keys.
	if _, err := st.DB().Exec(`DROP INDEX idx_note_file_order`); err != nil {
		t.Fatal(err)
	}
	if _, err := st.DB().Exec(
		`UPDATE note_file SET page_order = 1 WHERE note_id = ? AND file_id = ?`, noteID, files[1]); err != nil {
		t.Fatal(err)
	}

	res, err := Rebuild(context.Background(), st, Options{NoteID: noteID})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Anomalies) != 1 {
		t.Fatalf("anomalies = %+v, want one duplicate-order", res.Anomalies)
	}
	a := res.Anomalies[0]
	if a.Kind != AnomalyDuplicateOrder || a.Table != TableNoteFile || a.NoteID != noteID {
		t.Errorf("anomaly = %+v", a)
	}

	// The tie breaks on row id and the chain still comes out linear.
	ptrs := pagePointers(t, st, noteID)
	first, second := files[0], files[1]
	if second < first {
		first, second = second, first
	}
	wantPointer(t, ptrs[first][1], &second, "tiebreak.next")
	wantPointer(t, ptrs[second][0], &first, "tiebreak.prev")
}

func TestRebuildReportsOrphanPointer(t *testing.T) {
	st := testutil.TestStore(t)
	ctx := context.Background()
	noteID, files := seedNoteWithPages(t, st, []int64{1, 2})

	// A real file row that is not one of this note's pages.
	strayID, err := st.UpsertFile(ctx, store.File{Path: t.TempDir() + "/stray.png"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.DB().Exec(
		`UPDATE note_file SET prev_file_id = ? WHERE note_id = ? AND file_id = ?`,
		strayID, noteID, files[0]); err != nil {
		t.Fatal(err)
	}

	res, err := Rebuild(context.Background(), st, Options{NoteID: noteID, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, a := range res.Anomalies {
		if a.Kind == AnomalyOrphanPointer && a.RowID == files[0] {
			found = true
		}
	}
	if !found {
		t.Errorf("no orphan-pointer anomaly in %+v", res.Anomalies)
	}
}

func TestRebuildCoversTranscribedPages(t *testing.T) {
	st := testutil.TestStore(t)
	ctx := context.Background()
	noteID, err := st.CreateNote(ctx, store.Note{Title: "t", Content: "c"}, "2026-01-05")
	if err != nil {
		t.Fatal(err)
	}
	var pageIDs []int64
	for _, order := range []int64{2, 1} {
		id, err := st.UpsertTranscribedPage(ctx, store.TranscribedPage{
			NoteID: noteID, PageOrder: order, Text: "page text",
		}, "2026-01-05")
		if err != nil {
			t.Fatal(err)
		}
		pageIDs = append(pageIDs, id)
	}

	res, err := Rebuild(ctx, st, Options{NoteID: noteID})
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsUpdated != 2 {
		t.Fatalf("rows updated = %d, want 2", res.RowsUpdated)
	}

	var prev, next *int64
	err = st.DB().QueryRow(
		`SELECT prev_id, next_id FROM transcribed_page WHERE id = ?`, pageIDs[1]).Scan(&prev, &next)
	if err != nil {
		t.Fatal(err)
	}
	wantPointer(t, prev, nil, "page.prev")
	wantPointer(t, next, &pageIDs[0], "page.next")
}
