package api

import (
	"github.com/starford/ecglabel/internal/index"
	"github.com/starford/ecglabel/internal/ingest"
	"github.com/starford/ecglabel/internal/models"
	"github.com/starford/ecglabel/internal/review"
)

// DocumentListResponse wraps the document listing.
type DocumentListResponse struct {
	Documents []models.DocumentInfo `json:"documents" validate:"required"`
	Total     int                   `json:"total" example:"42" validate:"required"`
}

// SaveAnnotationRequest is the body of PUT /documents/{key}/annotation.
type SaveAnnotationRequest struct {
	Arrhythmias []string `json:"arrhythmias" example:"Atrial Fibrillation,Sinus Rhythm"`
	CustomLabel string   `json:"custom_label" example:"Wenckebach"`
	Notes       string   `json:"notes" example:"Irregular rhythm in lead II"`
	AnnotatedBy string   `json:"annotated_by" example:"dr_smith" validate:"required"`
}

func (r SaveAnnotationRequest) submission() models.Submission {
	return models.Submission{
		Arrhythmias: r.Arrhythmias,
		CustomLabel: r.CustomLabel,
		Notes:       r.Notes,
		AnnotatedBy: r.AnnotatedBy,
	}
}

// SaveAnnotationResponse is returned after a successful save.
type SaveAnnotationResponse struct {
	Key    string                   `json:"key" example:"report_001.json" validate:"required"`
	Record *models.AnnotationRecord `json:"record" validate:"required"`
}

// VocabularyResponse lists the controlled labels in display order.
type VocabularyResponse struct {
	Labels []string `json:"labels" validate:"required"`
}

// LabelCountsResponse wraps the label distribution.
type LabelCountsResponse struct {
	Labels []index.LabelCount `json:"labels" validate:"required"`
}

// AnnotationSearchResponse wraps annotation search results. Records is set
// for label/annotator filters, Results for text queries.
type AnnotationSearchResponse struct {
	Records []index.RecordRow    `json:"records,omitempty"`
	Results []index.SearchResult `json:"results,omitempty"`
}

// CreateSessionRequest opens a reviewer session.
type CreateSessionRequest struct {
	Annotator string `json:"annotator" example:"dr_smith"`
}

// JumpRequest is the body of POST /sessions/{id}/jump.
type JumpRequest struct {
	Key string `json:"key" example:"report_007.pdf" validate:"required"`
}

// SessionView is the state of a reviewer session.
type SessionView = review.View

// UploadReport is the per-item outcome of an upload.
type UploadReport = ingest.Report
