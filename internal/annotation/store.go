// Package annotation persists one AnnotationRecord per document, keyed by the
// document's name with its extension replaced by ".json".
//
// Saves are last-write-wins: every save replaces the stored record in full and
// carries no version or concurrency token.
package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/starford/ecglabel/internal/apperr"
	"github.com/starford/ecglabel/internal/models"
	"github.com/starford/ecglabel/internal/storage"
)

// Suffix is the key suffix of annotation records.
const Suffix = ".json"

// SaveHook is notified after a record has been written under key.
type SaveHook func(ctx context.Context, key string, rec *models.AnnotationRecord, raw []byte)

// Store reads and writes annotation records.
type Store struct {
	provider storage.Provider
	now      func() time.Time
	hooks    []SaveHook
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the save-time clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSaveHook registers a hook run after each successful save.
func WithSaveHook(h SaveHook) Option {
	return func(s *Store) { s.hooks = append(s.hooks, h) }
}

// NewStore creates a Store over provider.
func NewStore(provider storage.Provider, opts ...Option) *Store {
	s := &Store{provider: provider, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// KeyFor derives the record key of a document key. Leading dots do not start
// an extension, so ".hidden" maps to ".hidden.json".
func KeyFor(documentKey string) string {
	ext := path.Ext(strings.TrimLeft(documentKey, "."))
	return strings.TrimSuffix(documentKey, ext) + Suffix
}

// Load returns the record stored for documentKey, or nil when none exists.
func (s *Store) Load(ctx context.Context, documentKey string) (*models.AnnotationRecord, error) {
	key := KeyFor(documentKey)
	data, err := s.provider.Read(ctx, key)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("annotation: load %s: %w", key, err)
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("annotation: load %s: %w", key, err)
	}
	return rec, nil
}

// Save validates sub, stamps it and replaces the record of documentKey.
// It returns the key the record was stored under. Nothing is written when
// validation fails.
func (s *Store) Save(ctx context.Context, documentKey string, sub models.Submission) (string, *models.AnnotationRecord, error) {
	if err := storage.ValidateKey(documentKey); err != nil {
		return "", nil, err
	}
	if err := sub.Validate(); err != nil {
		return "", nil, apperr.Validation(err)
	}

	rec := &models.AnnotationRecord{
		Filename:    documentKey,
		Arrhythmias: sub.Labels(),
		Notes:       sub.Notes,
		AnnotatedBy: strings.TrimSpace(sub.AnnotatedBy),
		Timestamp:   s.now().Format(models.TimestampLayout),
	}
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return "", nil, fmt.Errorf("annotation: encode: %w", err)
	}

	key := KeyFor(documentKey)
	if err := s.provider.Write(ctx, key, data); err != nil {
		return "", nil, fmt.Errorf("annotation: save %s: %w", key, err)
	}

	for _, h := range s.hooks {
		h(ctx, key, rec, data)
	}
	return key, rec, nil
}

// List returns the metadata of every stored record.
func (s *Store) List(ctx context.Context) ([]models.DocumentInfo, error) {
	items, err := s.provider.List(ctx, Suffix)
	if err != nil {
		return nil, fmt.Errorf("annotation: list: %w", err)
	}
	return items, nil
}

// ReadRaw returns a record by its own key, decoded and schema-checked.
func (s *Store) ReadRaw(ctx context.Context, key string) (*models.AnnotationRecord, []byte, error) {
	data, err := s.provider.Read(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return rec, data, nil
}

// Decode parses and schema-checks a stored record.
func Decode(data []byte) (*models.AnnotationRecord, error) {
	var rec models.AnnotationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperr.Validation(fmt.Errorf("malformed record: %w", err))
	}
	if err := rec.Validate(); err != nil {
		return nil, apperr.Validation(err)
	}
	return &rec, nil
}
