// Package review coordinates the document store, the annotation store, the
// statistics index, the ingestion pipeline and reviewer sessions. The HTTP
// API and the MCP server are thin layers over it.
package review

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/ecglabel/internal/annotation"
	"github.com/starford/ecglabel/internal/apperr"
	"github.com/starford/ecglabel/internal/index"
	"github.com/starford/ecglabel/internal/ingest"
	"github.com/starford/ecglabel/internal/models"
	"github.com/starford/ecglabel/internal/session"
	"github.com/starford/ecglabel/internal/storage"
)

// Service is the application layer shared by every front end.
type Service struct {
	docs        storage.Provider
	annotations *annotation.Store
	db          *index.DB
	pipeline    *ingest.Pipeline
	sessions    *session.Registry
	logger      *slog.Logger
}

// NewService wires a Service. sessions may be nil for front ends that do not
// navigate (the MCP server, the CLI).
func NewService(docs storage.Provider, annotations *annotation.Store, db *index.DB, pipeline *ingest.Pipeline, sessions *session.Registry, logger *slog.Logger) *Service {
	if sessions == nil {
		sessions = session.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		docs:        docs,
		annotations: annotations,
		db:          db,
		pipeline:    pipeline,
		sessions:    sessions,
		logger:      logger,
	}
}

// ListDocuments returns every document in store enumeration order.
func (s *Service) ListDocuments(ctx context.Context) ([]models.DocumentInfo, error) {
	items, err := s.docs.List(ctx, ingest.DocumentSuffix)
	if err != nil {
		return nil, fmt.Errorf("documents: list: %w", err)
	}
	return nonNilSlice(items), nil
}

// DocumentKeys returns the keys of ListDocuments.
func (s *Service) DocumentKeys(ctx context.Context) ([]string, error) {
	items, err := s.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.Key
	}
	return keys, nil
}

// ReadDocument returns the raw bytes of a document.
func (s *Service) ReadDocument(ctx context.Context, key string) ([]byte, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := s.docs.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("documents: read %s: %w", key, err)
	}
	return data, nil
}

// GetAnnotation returns the record of a document, or ErrNotFound when the
// document has not been annotated yet.
func (s *Service) GetAnnotation(ctx context.Context, documentKey string) (*models.AnnotationRecord, error) {
	if err := storage.ValidateKey(documentKey); err != nil {
		return nil, err
	}
	rec, err := s.annotations.Load(ctx, documentKey)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("annotation for %s: %w", documentKey, apperr.ErrNotFound)
	}
	return rec, nil
}

// Form returns the prefill form of a document. A document without a record
// yields an empty form.
func (s *Service) Form(ctx context.Context, documentKey string) (models.Form, error) {
	if err := storage.ValidateKey(documentKey); err != nil {
		return models.Form{}, err
	}
	rec, err := s.annotations.Load(ctx, documentKey)
	if err != nil {
		return models.Form{}, err
	}
	return models.FormFromRecord(rec), nil
}

// SaveAnnotation validates and stores a submission for documentKey.
func (s *Service) SaveAnnotation(ctx context.Context, documentKey string, sub models.Submission) (string, *models.AnnotationRecord, error) {
	return s.annotations.Save(ctx, documentKey, sub)
}

// Stats returns the sidebar summary: records, annotators and the most
// recently annotated keys.
func (s *Service) Stats(_ context.Context, recent int) (*index.Stats, error) {
	return s.db.Stats(recent)
}

// LabelCounts returns the label distribution over all records.
func (s *Service) LabelCounts(_ context.Context) ([]index.LabelCount, error) {
	return s.db.LabelCounts()
}

// FindAnnotations filters indexed records by label and annotator.
func (s *Service) FindAnnotations(_ context.Context, q index.Query) ([]index.RecordRow, error) {
	rows, err := s.db.Find(q)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(rows), nil
}

// SearchAnnotations runs a text search over labels, notes and filenames.
func (s *Service) SearchAnnotations(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	res, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(res), nil
}

// Reindex reconciles the index with the annotation store.
func (s *Service) Reindex(ctx context.Context) (index.SyncResult, error) {
	return index.Sync(ctx, s.db, s.annotations, s.logger)
}

// Ingest stores a batch of uploads.
func (s *Service) Ingest(ctx context.Context, items []ingest.Item) ingest.Report {
	return s.pipeline.Ingest(ctx, items)
}

// IndexHook keeps the index current after API and MCP saves and hands the
// change to publish. Index failures are logged; the record is already stored
// and the next Sync repairs the index.
func IndexHook(db *index.DB, logger *slog.Logger, publish func(kind, key string)) annotation.SaveHook {
	return func(_ context.Context, key string, rec *models.AnnotationRecord, raw []byte) {
		if err := db.UpsertRecord(index.RowFromRecord(key, storage.Checksum(raw), rec)); err != nil {
			logger.Error("index: upsert after save failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		if publish != nil {
			publish(index.EventSaved, key)
		}
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
