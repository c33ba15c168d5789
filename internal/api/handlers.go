package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ecglabel/internal/index"
	"github.com/starford/ecglabel/internal/models"
	"github.com/starford/ecglabel/internal/review"
)

const maxJSONBody = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *review.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *review.Service) *Handler {
	return &Handler{svc: svc}
}

// urlParam returns a decoded chi URL parameter. Supports encoded names from
// OpenAPI clients (e.g. report%20001.pdf).
func urlParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List ECG report documents in store order
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	DocumentListResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.ListDocuments(r.Context())
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: len(docs)})
}

// GetDocument handles GET /api/documents/{key}.
//
//	@Summary		Download the PDF of a document
//	@Tags			documents
//	@Produce		application/pdf
//	@Param			key	path	string	true	"Document key"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{key} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	key := urlParam(r, "key")
	data, err := h.svc.ReadDocument(r.Context(), key)
	if err != nil {
		writeError(w, "read document", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", "inline; filename="+strconv.Quote(key))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetAnnotation handles GET /api/documents/{key}/annotation.
//
//	@Summary		Get the annotation record of a document
//	@Tags			annotations
//	@Produce		json
//	@Param			key	path		string	true	"Document key"
//	@Success		200	{object}	models.AnnotationRecord
//	@Failure		404	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{key}/annotation [get]
func (h *Handler) GetAnnotation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetAnnotation(r.Context(), urlParam(r, "key"))
	if err != nil {
		writeError(w, "get annotation", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// SaveAnnotation handles PUT /api/documents/{key}/annotation.
//
//	@Summary		Save (replace) the annotation record of a document
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			key		path		string					true	"Document key"
//	@Param			body	body		SaveAnnotationRequest	true	"Labels and notes"
//	@Success		200		{object}	SaveAnnotationResponse
//	@Failure		422		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{key}/annotation [put]
func (h *Handler) SaveAnnotation(w http.ResponseWriter, r *http.Request) {
	var req SaveAnnotationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	key, rec, err := h.svc.SaveAnnotation(r.Context(), urlParam(r, "key"), req.submission())
	if err != nil {
		writeError(w, "save annotation", err)
		return
	}
	writeJSON(w, http.StatusOK, SaveAnnotationResponse{Key: key, Record: rec})
}

// GetForm handles GET /api/documents/{key}/form.
//
//	@Summary		Get the editing form prefilled from the stored record
//	@Tags			annotations
//	@Produce		json
//	@Param			key	path		string	true	"Document key"
//	@Success		200	{object}	models.Form
//	@Security		BearerAuth
//	@Router			/documents/{key}/form [get]
func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	form, err := h.svc.Form(r.Context(), urlParam(r, "key"))
	if err != nil {
		writeError(w, "get form", err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// Vocabulary handles GET /api/vocabulary.
//
//	@Summary		List the controlled arrhythmia labels
//	@Tags			annotations
//	@Produce		json
//	@Success		200	{object}	VocabularyResponse
//	@Router			/vocabulary [get]
func (h *Handler) Vocabulary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, VocabularyResponse{Labels: models.Vocabulary})
}

// Stats handles GET /api/annotations/stats.
//
//	@Summary		Total annotated and recently annotated records
//	@Tags			statistics
//	@Produce		json
//	@Param			recent	query		int	false	"Number of recent keys"
//	@Success		200		{object}	index.Stats
//	@Security		BearerAuth
//	@Router			/annotations/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	recent, _ := strconv.Atoi(r.URL.Query().Get("recent"))
	stats, err := h.svc.Stats(r.Context(), recent)
	if err != nil {
		writeError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// LabelCounts handles GET /api/annotations/labels.
func (h *Handler) LabelCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.LabelCounts(r.Context())
	if err != nil {
		writeError(w, "label counts", err)
		return
	}
	writeJSON(w, http.StatusOK, LabelCountsResponse{Labels: counts})
}

// SearchAnnotations handles GET /api/annotations/search.
//
//	@Summary		Find records by label or annotator, or search their text
//	@Tags			statistics
//	@Produce		json
//	@Param			label			query		string	false	"Exact label"
//	@Param			annotated_by	query		string	false	"Annotator"
//	@Param			q				query		string	false	"Text query"
//	@Param			limit			query		int		false	"Max results"
//	@Success		200				{object}	AnnotationSearchResponse
//	@Security		BearerAuth
//	@Router			/annotations/search [get]
func (h *Handler) SearchAnnotations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	if text := q.Get("q"); text != "" {
		res, err := h.svc.SearchAnnotations(r.Context(), text, limit)
		if err != nil {
			writeError(w, "search annotations", err)
			return
		}
		writeJSON(w, http.StatusOK, AnnotationSearchResponse{Results: res})
		return
	}

	rows, err := h.svc.FindAnnotations(r.Context(), index.Query{
		Label:       q.Get("label"),
		AnnotatedBy: q.Get("annotated_by"),
		Limit:       limit,
	})
	if err != nil {
		writeError(w, "find annotations", err)
		return
	}
	writeJSON(w, http.StatusOK, AnnotationSearchResponse{Records: rows})
}

// Reindex handles POST /api/annotations/reindex.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reindex(r.Context())
	if err != nil {
		writeError(w, "reindex", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateSession handles POST /api/sessions.
//
//	@Summary		Open a reviewer session over the current documents
//	@Tags			sessions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateSessionRequest	false	"Annotator"
//	@Success		201		{object}	SessionView
//	@Security		BearerAuth
//	@Router			/sessions [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	v, err := h.svc.StartSession(r.Context(), req.Annotator)
	if err != nil {
		writeError(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// GetSession handles GET /api/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// DeleteSession handles DELETE /api/sessions/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	h.svc.CloseSession(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// MoveSession handles POST /api/sessions/{id}/{previous|next|refresh}.
//
//	@Summary		Move the session cursor
//	@Tags			sessions
//	@Produce		json
//	@Param			id		path		string	true	"Session ID"
//	@Param			action	path		string	true	"Action"	Enums(previous, next, refresh)
//	@Success		200		{object}	SessionView
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sessions/{id}/{action} [post]
func (h *Handler) MoveSession(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	switch action {
	case review.MovePrevious, review.MoveNext, review.MoveRefresh:
	default:
		writeJSON(w, http.StatusNotFound, errorBody("unknown action"))
		return
	}
	v, err := h.svc.Move(r.Context(), chi.URLParam(r, "id"), action)
	if err != nil {
		writeError(w, "move session", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// JumpSession handles POST /api/sessions/{id}/jump.
func (h *Handler) JumpSession(w http.ResponseWriter, r *http.Request) {
	var req JumpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Key == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("key is required"))
		return
	}
	v, err := h.svc.Jump(r.Context(), chi.URLParam(r, "id"), req.Key)
	if err != nil {
		writeError(w, "jump session", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
