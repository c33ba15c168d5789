package api

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/starford/ecglabel/internal/ingest"
	"github.com/starford/ecglabel/internal/review"
)

// multipartMemory is the part of a multipart upload kept in memory; the rest
// spills to temporary files.
const multipartMemory = 32 << 20

// UploadHandler accepts document uploads.
type UploadHandler struct {
	svc      *review.Service
	maxBytes int64
}

// NewUploadHandler creates a handler that accepts request bodies up to
// maxBytes.
func NewUploadHandler(svc *review.Service, maxBytes int64) *UploadHandler {
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &UploadHandler{svc: svc, maxBytes: maxBytes}
}

// Upload handles POST /api/uploads (multipart/form-data, repeated field
// "files"). Each file is a PDF or a zip of PDFs; the response reports every
// item. A batch with failures still answers 200 when at least one item was
// stored.
//
//	@Summary		Upload ECG report PDFs or zip archives
//	@Tags			documents
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			files	formData	file	true	"PDF or zip files"
//	@Success		200		{object}	UploadReport
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	UploadReport
//	@Security		BearerAuth
//	@Router			/uploads [post]
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'files' field in multipart form"))
		return
	}

	items := make([]ingest.Item, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("failed to read "+fh.Filename))
			return
		}
		items = append(items, ingest.Item{Name: fh.Filename, Data: data})
	}

	rep := h.svc.Ingest(r.Context(), items)
	status := http.StatusOK
	if len(rep.Succeeded) == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, rep)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
