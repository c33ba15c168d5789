package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ecglabel/internal/review"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// maxUpload bounds the request body of POST /uploads.
func NewRouter(svc *review.Service, authEnabled bool, token string, sseHandler http.Handler, maxUpload int64) chi.Router {
	h := NewHandler(svc)
	uh := NewUploadHandler(svc, maxUpload)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents and their annotation records.
	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/{key}", h.GetDocument)
	r.Get("/documents/{key}/annotation", h.GetAnnotation)
	r.Put("/documents/{key}/annotation", h.SaveAnnotation)
	r.Get("/documents/{key}/form", h.GetForm)

	r.Get("/vocabulary", h.Vocabulary)

	// Bulk ingestion of PDFs and zip archives.
	r.Post("/uploads", uh.Upload)

	// Index-backed statistics.
	r.Get("/annotations/stats", h.Stats)
	r.Get("/annotations/labels", h.LabelCounts)
	r.Get("/annotations/search", h.SearchAnnotations)
	r.Post("/annotations/reindex", h.Reindex)

	// Reviewer sessions.
	r.Post("/sessions", h.CreateSession)
	r.Get("/sessions/{id}", h.GetSession)
	r.Delete("/sessions/{id}", h.DeleteSession)
	r.Post("/sessions/{id}/jump", h.JumpSession)
	r.Post("/sessions/{id}/{action}", h.MoveSession)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
