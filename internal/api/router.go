package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Store status and search.
	r.Get("/status", h.Status)
	r.Get("/search", h.Search)

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)

	// Consistency operations.
	r.Post("/ops/chains/rebuild", h.RebuildChains)
	r.Post("/ops/passages/validate", h.ValidatePassages)
	r.Post("/ops/passages/citations", h.FillCitations)
	r.Post("/ops/files/processed", h.MarkProcessed)
	r.Post("/ops/search/rebuild", h.RebuildSearch)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
