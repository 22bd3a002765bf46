package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/codex/internal/apperr"
	"github.com/starford/codex/internal/chain"
	"github.com/starford/codex/internal/passage"
	"github.com/starford/codex/internal/scripture"
	"github.com/starford/codex/internal/searchidx"
	"github.com/starford/codex/internal/store"
	"github.com/starford/codex/internal/tracker"
)

// OpCallback is invoked after a successful mutating operation, for SSE
// fan-out. kind becomes the "op.<kind>" event type.
type OpCallback func(kind string, data map[string]any)

// Handler holds API route handlers.
type Handler struct {
	st     *store.Store
	reader *scripture.Reader
	onOp   OpCallback
}

// NewHandler creates a new Handler. onOp may be nil.
func NewHandler(st *store.Store, reader *scripture.Reader, onOp OpCallback) *Handler {
	return &Handler{st: st, reader: reader, onOp: onOp}
}

func (h *Handler) notify(kind string, data map[string]any) {
	if h.onOp != nil {
		h.onOp(kind, data)
	}
}

func today() string {
	return time.Now().Format("2006-01-02")
}

// writeError maps store-level errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrWriteConflict), errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("conflict"))
	case errors.Is(err, apperr.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("store unavailable"))
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func noteID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	counts, err := h.st.Counts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing query"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := searchidx.Search(h.st.DB(), q, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "total": len(results)})
}

// ListNotes handles GET /api/notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	notes, err := h.st.ListNotes(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes, "total": len(notes)})
}

type noteRequest struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

// CreateNote handles POST /api/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	id, err := h.st.CreateNote(r.Context(), store.Note{
		Title: req.Title, Author: req.Author, Content: req.Content,
	}, today())
	if err != nil {
		writeError(w, err)
		return
	}
	h.notify("note.created", map[string]any{"note_id": id})
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// GetNote handles GET /api/notes/{id}. The detail view carries the page
// memberships, linked passages, and the edit history.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	n, err := h.st.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	pages, err := h.st.NotePages(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	passages, relations, err := h.st.NotePassages(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	editDates, err := h.st.EditDates(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	type passageView struct {
		ID       int64   `json:"id"`
		Start    int64   `json:"start_verse_id"`
		End      int64   `json:"end_verse_id"`
		Citation *string `json:"citation"`
		Relation string  `json:"relation"`
	}
	pv := make([]passageView, len(passages))
	for i, p := range passages {
		pv[i] = passageView{
			ID: p.ID, Start: p.StartVerseID, End: p.EndVerseID,
			Citation: p.Citation, Relation: relations[i],
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"note":       n,
		"pages":      pages,
		"passages":   pv,
		"edit_dates": editDates,
	})
}

// UpdateNote handles PUT /api/notes/{id}.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	if err := h.st.UpdateNoteContent(r.Context(), id, req.Title, req.Content, today()); err != nil {
		writeError(w, err)
		return
	}
	h.notify("note.updated", map[string]any{"note_id": id})
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

// DeleteNote handles DELETE /api/notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid note id"))
		return
	}
	if err := h.st.DeleteNote(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.notify("note.deleted", map[string]any{"note_id": id})
	w.WriteHeader(http.StatusNoContent)
}

type chainRebuildRequest struct {
	NoteID      int64 `json:"note_id"`
	OnlyMissing bool  `json:"only_missing"`
	DryRun      bool  `json:"dry_run"`
}

// RebuildChains handles POST /api/ops/chains/rebuild.
func (h *Handler) RebuildChains(w http.ResponseWriter, r *http.Request) {
	var req chainRebuildRequest
	if err := decodeOptional(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	res, err := chain.Rebuild(r.Context(), h.st, chain.Options{
		NoteID: req.NoteID, OnlyMissing: req.OnlyMissing, DryRun: req.DryRun,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if !req.DryRun {
		h.notify("chains.rebuilt", map[string]any{
			"notes_examined": res.NotesExamined,
			"rows_updated":   res.RowsUpdated,
		})
	}
	writeJSON(w, http.StatusOK, res)
}

// ValidatePassages handles POST /api/ops/passages/validate.
func (h *Handler) ValidatePassages(w http.ResponseWriter, r *http.Request) {
	rep, err := passage.Validate(r.Context(), h.st, h.reader)
	if err != nil {
		writeError(w, err)
		return
	}
	h.notify("passages.validated", map[string]any{"total": rep.Total, "counts": rep.Counts})
	writeJSON(w, http.StatusOK, rep)
}

type fillCitationsRequest struct {
	Force  bool `json:"force"`
	DryRun bool `json:"dry_run"`
}

// FillCitations handles POST /api/ops/passages/citations.
func (h *Handler) FillCitations(w http.ResponseWriter, r *http.Request) {
	var req fillCitationsRequest
	if err := decodeOptional(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	rep, err := passage.FillCitations(r.Context(), h.st, h.reader, passage.FillOptions{
		Force: req.Force, DryRun: req.DryRun,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if !req.DryRun {
		h.notify("citations.filled", map[string]any{"filled": rep.Filled, "skipped": rep.Skipped})
	}
	writeJSON(w, http.StatusOK, rep)
}

type markProcessedRequest struct {
	IDs              []int64  `json:"ids"`
	Paths            []string `json:"paths"`
	AllWithArtifacts bool     `json:"all_with_artifacts"`
	Processed        *bool    `json:"processed"`
}

// MarkProcessed handles POST /api/ops/files/processed.
func (h *Handler) MarkProcessed(w http.ResponseWriter, r *http.Request) {
	var req markProcessedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	processed := true
	if req.Processed != nil {
		processed = *req.Processed
	}
	res, err := tracker.Mark(r.Context(), h.st, tracker.Selector{
		IDs: req.IDs, Paths: req.Paths, AllWithArtifacts: req.AllWithArtifacts,
	}, processed)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	h.notify("files.marked", map[string]any{"changed": res.Changed})
	writeJSON(w, http.StatusOK, res)
}

// RebuildSearch handles POST /api/ops/search/rebuild.
func (h *Handler) RebuildSearch(w http.ResponseWriter, r *http.Request) {
	if err := searchidx.RebuildAll(r.Context(), h.st.DB()); err != nil {
		writeError(w, err)
		return
	}
	h.notify("search.rebuilt", map[string]any{})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeOptional decodes a JSON body, treating an empty body as the zero
// request.
func decodeOptional(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
