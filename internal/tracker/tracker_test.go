package tracker

import (
	"context"
	"testing"

	"github.com/starford/codex/internal/store"
	"github.com/starford/codex/internal/testutil"
)

func seedFiles(t *testing.T, st *store.Store) (withArtifacts, without int64) {
	t.Helper()
	ctx := context.Background()
	a, err := st.UpsertFile(ctx, store.File{Path: "/scans/a.png"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := st.UpsertFile(ctx, store.File{Path: "/scans/b.png"})
	if err != nil {
		t.Fatal(err)
	}
	text, jsonPath := "/ocr/a.txt", "/ocr/a.json"
	if err := st.SetOCRArtifacts(ctx, a, &text, &jsonPath); err != nil {
		t.Fatal(err)
	}
	return a, b
}

func processedFlag(t *testing.T, st *store.Store, id int64) bool {
	t.Helper()
	var v int64
	if err := st.DB().QueryRow(`SELECT fully_processed FROM file WHERE id = ?`, id).Scan(&v); err != nil {
		t.Fatal(err)
	}
	return v != 0
}

func TestMarkByIDs(t *testing.T) {
	st := testutil.TestStore(t)
	a, b := seedFiles(t, st)

	res, err := Mark(context.Background(), st, Selector{IDs: []int64{a}}, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched != 1 || res.Changed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if !processedFlag(t, st, a) || processedFlag(t, st, b) {
		t.Error("wrong rows flagged")
	}
}

func TestMarkByPaths(t *testing.T) {
	st := testutil.TestStore(t)
	_, b := seedFiles(t, st)

	res, err := Mark(context.Background(), st, Selector{Paths: []string{"/scans/b.png"}}, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed != 1 {
		t.Fatalf("changed = %d", res.Changed)
	}
	if !processedFlag(t, st, b) {
		t.Error("path-selected row not flagged")
	}
}

func TestMarkAllWithArtifacts(t *testing.T) {
	st := testutil.TestStore(t)
	a, b := seedFiles(t, st)

	res, err := Mark(context.Background(), st, Selector{AllWithArtifacts: true}, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched != 1 || res.Changed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if !processedFlag(t, st, a) {
		t.Error("file with artifacts not flagged")
	}
	if processedFlag(t, st, b) {
		t.Error("file without artifacts flagged")
	}
}

func TestMarkIsIdempotentAndReversible(t *testing.T) {
	st := testutil.TestStore(t)
	a, _ := seedFiles(t, st)
	ctx := context.Background()

	if _, err := Mark(ctx, st, Selector{IDs: []int64{a}}, true); err != nil {
		t.Fatal(err)
	}
	res, err := Mark(ctx, st, Selector{IDs: []int64{a}}, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Matched != 1 || res.Changed != 0 {
		t.Fatalf("repeat mark = %+v, want matched 1 changed 0", res)
	}

	res, err = Mark(ctx, st, Selector{IDs: []int64{a}}, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed != 1 || processedFlag(t, st, a) {
		t.Error("clearing the flag failed")
	}
}

func TestMarkRejectsAmbiguousSelector(t *testing.T) {
	st := testutil.TestStore(t)

	if _, err := Mark(context.Background(), st, Selector{}, true); err == nil {
		t.Error("empty selector accepted")
	}
	if _, err := Mark(context.Background(), st, Selector{IDs: []int64{1}, AllWithArtifacts: true}, true); err == nil {
		t.Error("double selector accepted")
	}
}
