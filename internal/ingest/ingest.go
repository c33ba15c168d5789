// Package ingest validates uploaded ECG reports, single PDFs or zip archives
// of PDFs, and deposits the valid ones in the document store.
package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ecglabel/internal/apperr"
	"github.com/starford/ecglabel/internal/storage"
)

// DocumentSuffix is the key suffix of documents.
const DocumentSuffix = ".pdf"

const archiveSuffix = ".zip"

// Item is one uploaded file.
type Item struct {
	Name string
	Data []byte
}

// Failure names an item that was not stored and why.
type Failure struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Report aggregates the outcome of a batch. Succeeded holds document keys.
type Report struct {
	Succeeded []string  `json:"succeeded"`
	Failed    []Failure `json:"failed"`
}

// OK reports whether every item was stored.
func (r Report) OK() bool { return len(r.Failed) == 0 }

// Pipeline runs ingestion batches against a document store.
type Pipeline struct {
	docs          storage.Provider
	validate      func([]byte) (int, error)
	workers       int
	maxBytes      int64
	maxBatchBytes int64
	logger        *slog.Logger
	onIngested    func(keys []string)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds the number of documents validated and written at once.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxBytes limits the size of a single document, archive members included.
func WithMaxBytes(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// WithMaxBatchBytes limits the total uncompressed size of the archive members
// of one batch. Members past the limit fail without being decompressed.
func WithMaxBatchBytes(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBatchBytes = n
		}
	}
}

// WithValidator replaces ValidatePDF.
func WithValidator(fn func([]byte) (int, error)) Option {
	return func(p *Pipeline) { p.validate = fn }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithIngestedCallback is called once per batch with the stored keys, if any.
func WithIngestedCallback(fn func(keys []string)) Option {
	return func(p *Pipeline) { p.onIngested = fn }
}

// New creates a Pipeline writing into docs.
func New(docs storage.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		docs:          docs,
		validate:      ValidatePDF,
		workers:       4,
		maxBytes:      50 << 20,
		maxBatchBytes: 512 << 20,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// unit is one candidate document after archive expansion. Archive members
// are decompressed by the worker that stores them. err is set when the item
// already failed during expansion.
type unit struct {
	name   string
	key    string
	data   []byte
	member *zip.File
	err    error
}

// batch tracks what a single Ingest call has claimed so far.
type batch struct {
	keys      map[string]struct{}
	remaining int64
}

// claim reserves key for one unit of the batch.
func (b *batch) claim(key string) error {
	if _, ok := b.keys[key]; ok {
		return fmt.Errorf("duplicate document name %q in batch: %w", key, apperr.ErrValidationFailed)
	}
	b.keys[key] = struct{}{}
	return nil
}

// Ingest processes every item and never stops at the first failure.
func (p *Pipeline) Ingest(ctx context.Context, items []Item) Report {
	b := &batch{keys: make(map[string]struct{}), remaining: p.maxBatchBytes}
	var units []unit
	for _, it := range items {
		units = append(units, p.expand(it, b)...)
	}

	errs := make([]error, len(units))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range units {
		u := units[i]
		if u.err != nil {
			errs[i] = u.err
			continue
		}
		g.Go(func() error {
			errs[i] = p.store(gCtx, u)
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Succeeded: []string{}, Failed: []Failure{}}
	for i, u := range units {
		if errs[i] != nil {
			p.logger.Warn("ingest: item failed", slog.String("name", u.name), slog.String("error", errs[i].Error()))
			rep.Failed = append(rep.Failed, Failure{Name: u.name, Reason: errs[i].Error()})
			continue
		}
		p.logger.Debug("ingest: stored", slog.String("name", u.name), slog.String("key", u.key))
		rep.Succeeded = append(rep.Succeeded, u.key)
	}
	if len(rep.Succeeded) > 0 && p.onIngested != nil {
		p.onIngested(rep.Succeeded)
	}
	return rep
}

func (p *Pipeline) store(ctx context.Context, u unit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := u.data
	if u.member != nil {
		var err error
		if data, err = p.readMember(u.member); err != nil {
			return err
		}
	}
	if _, err := p.validate(data); err != nil {
		return err
	}
	return p.docs.Write(ctx, u.key, data)
}

// expand turns one uploaded item into document units.
func (p *Pipeline) expand(it Item, b *batch) []unit {
	name := it.Name
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, archiveSuffix):
		return p.expandArchive(it, b)
	case strings.HasSuffix(lower, DocumentSuffix):
		u := unit{name: name, key: documentKey(name), data: it.Data}
		if err := storage.ValidateKey(u.key); err != nil {
			u.err = err
		} else if int64(len(it.Data)) > p.maxBytes {
			u.err = fmt.Errorf("file too large: %d bytes (max %d): %w", len(it.Data), p.maxBytes, apperr.ErrValidationFailed)
		} else {
			u.err = b.claim(u.key)
		}
		return []unit{u}
	default:
		return []unit{{name: name, err: fmt.Errorf("unsupported file type (want .pdf or .zip): %w", apperr.ErrValidationFailed)}}
	}
}

func (p *Pipeline) expandArchive(it Item, b *batch) []unit {
	zr, err := zip.NewReader(bytes.NewReader(it.Data), int64(len(it.Data)))
	if err != nil {
		return []unit{{name: it.Name, err: fmt.Errorf("unreadable zip archive: %w: %w", apperr.ErrValidationFailed, err)}}
	}
	var out []unit
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), DocumentSuffix) {
			continue
		}
		u := unit{name: it.Name + ":" + f.Name, key: documentKey(f.Name), member: f}
		u.err = p.admitMember(f, u.key, b)
		out = append(out, u)
	}
	if len(out) == 0 {
		return []unit{{name: it.Name, err: fmt.Errorf("archive contains no PDF files: %w", apperr.ErrValidationFailed)}}
	}
	return out
}

// admitMember checks a member against the key rules and size limits before
// anything is decompressed. The zip reader refuses to produce more than the
// declared uncompressed size, so the declared size bounds the bytes read.
func (p *Pipeline) admitMember(f *zip.File, key string, b *batch) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	size := f.UncompressedSize64
	if size > uint64(p.maxBytes) {
		return fmt.Errorf("file too large: %d bytes (max %d): %w", size, p.maxBytes, apperr.ErrValidationFailed)
	}
	if int64(size) > b.remaining {
		return fmt.Errorf("archive batch exceeds %d uncompressed bytes: %w", p.maxBatchBytes, apperr.ErrValidationFailed)
	}
	if err := b.claim(key); err != nil {
		return err
	}
	b.remaining -= int64(size)
	return nil
}

func (p *Pipeline) readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open archive member: %w: %w", apperr.ErrValidationFailed, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read archive member: %w: %w", apperr.ErrValidationFailed, err)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, fmt.Errorf("file too large: exceeds %d bytes: %w", p.maxBytes, apperr.ErrValidationFailed)
	}
	return data, nil
}

// documentKey flattens an uploaded or archived name into a store key.
func documentKey(name string) string {
	return path.Base(strings.ReplaceAll(name, `\`, "/"))
}
