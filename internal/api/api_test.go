package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/starford/codex/internal/scripture"
	"github.com/starford/codex/internal/store"
	"github.com/starford/codex/internal/testutil"
)

func newTestRouter(t *testing.T) (*store.Store, http.Handler) {
	t.Helper()
	st := testutil.AttachedStore(t, []testutil.SeedVerse{
		{ID: 100, Volume: "Book of Mormon", Book: "Alma", Chapter: "32", Verse: 21},
		{ID: 101, Volume: "Book of Mormon", Book: "Alma", Chapter: "32", Verse: 22},
	})
	h := NewHandler(st, scripture.NewReader(st.DB()), nil)
	return st, NewRouter(h, false, "", nil)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	st := testutil.TestStore(t)
	h := NewHandler(st, scripture.NewReader(st.DB()), nil)
	router := NewRouter(h, true, "secret", nil)

	w := doJSON(t, router, http.MethodGet, "/status", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("with token: status = %d, want 200", w.Code)
	}
}

func TestNoteLifecycle(t *testing.T) {
	_, router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/notes", map[string]string{
		"title":   "reading log",
		"content": "started Alma today",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d body = %s", w.Code, w.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, router, http.MethodGet, "/notes/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: status = %d", w.Code)
	}
	var detail struct {
		Note struct {
			Title string `json:"Title"`
		} `json:"note"`
		EditDates []string `json:"edit_dates"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Note.Title != "reading log" {
		t.Errorf("title = %q", detail.Note.Title)
	}
	if len(detail.EditDates) != 1 {
		t.Errorf("edit dates = %v", detail.EditDates)
	}

	w = doJSON(t, router, http.MethodPut, "/notes/1", map[string]string{
		"title": "reading log", "content": "finished Alma 32",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodDelete, "/notes/1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/notes/1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", w.Code)
	}
}

func TestGetNoteNotFound(t *testing.T) {
	_, router := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/notes/42", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/notes/abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", w.Code)
	}
}

func TestRebuildChainsEndpoint(t *testing.T) {
	st, router := newTestRouter(t)
	ctx := context.Background()

	noteID, err := st.CreateNote(ctx, store.Note{Title: "n", Content: "c"}, "2026-01-01")
	if err != nil {
		t.Fatal(err)
	}
	for i, path := range []string{"/s/a.png", "/s/b.png"} {
		fid, err := st.UpsertFile(ctx, store.File{Path: path})
		if err != nil {
			t.Fatal(err)
		}
		if err := st.LinkNoteFile(ctx, noteID, fid, int64(2-i)); err != nil {
			t.Fatal(err)
		}
	}

	w := doJSON(t, router, http.MethodPost, "/ops/chains/rebuild", map[string]any{"note_id": noteID})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var res struct {
		RowsUpdated int `json:"rows_updated"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.RowsUpdated != 2 {
		t.Errorf("rows_updated = %d, want 2", res.RowsUpdated)
	}
}

func TestValidateAndFillEndpoints(t *testing.T) {
	st, router := newTestRouter(t)
	ctx := context.Background()

	if _, err := st.UpsertPassage(ctx, 100, 101, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := st.UpsertPassage(ctx, 100, 9999, nil); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodPost, "/ops/passages/validate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("validate: status = %d", w.Code)
	}
	var rep struct {
		Total  int            `json:"total"`
		Counts map[string]int `json:"counts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Total != 2 || rep.Counts["valid"] != 1 || rep.Counts["dangling-end"] != 1 {
		t.Errorf("report = %+v", rep)
	}

	w = doJSON(t, router, http.MethodPost, "/ops/passages/citations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("citations: status = %d", w.Code)
	}
	var fill struct {
		Filled  int `json:"filled"`
		Skipped int `json:"skipped"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &fill); err != nil {
		t.Fatal(err)
	}
	if fill.Filled != 1 || fill.Skipped != 1 {
		t.Errorf("fill = %+v", fill)
	}
}

func TestMarkProcessedEndpoint(t *testing.T) {
	st, router := newTestRouter(t)
	ctx := context.Background()

	fid, err := st.UpsertFile(ctx, store.File{Path: "/s/c.png"})
	if err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, http.MethodPost, "/ops/files/processed", map[string]any{"ids": []int64{fid}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	var res struct {
		Changed int64 `json:"changed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Changed != 1 {
		t.Errorf("changed = %d", res.Changed)
	}

	// Empty selector is a client error.
	w = doJSON(t, router, http.MethodPost, "/ops/files/processed", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty selector: status = %d, want 400", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, router := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Counts map[string]int64 `json:"counts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body.Counts["notes"]; !ok {
		t.Errorf("counts missing notes key: %v", body.Counts)
	}
}
