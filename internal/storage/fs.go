package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/starford/ecglabel/internal/apperr"
	"github.com/starford/ecglabel/internal/models"
)

// FS implements Provider backed by a single local directory.
type FS struct {
	root         string // absolute path
	contentETags bool
}

// FSOption configures an FS provider.
type FSOption func(*FS)

// WithContentETags makes List report the content checksum as etag. Every
// listed file is read, so use it only for stores of small records.
func WithContentETags() FSOption {
	return func(f *FS) { f.contentETags = true }
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...FSOption) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	f := &FS{root: abs}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute directory the provider serves.
func (f *FS) Root() string { return f.root }

// List reads the root directory (non-recursive). Entries are returned in
// directory order as reported by the OS. The etag is derived from size and
// modification time unless content etags are enabled.
func (f *FS) List(_ context.Context, suffix string) ([]models.DocumentInfo, error) {
	entries, err := readDirUnsorted(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w: %w", apperr.ErrStoreUnavailable, err)
	}
	var out []models.DocumentInfo
	for _, d := range entries {
		if d.IsDir() || !hasSuffixFold(d.Name(), suffix) || ValidateKey(d.Name()) != nil {
			continue
		}
		info, err := d.Info()
		if err != nil {
			// Removed between readdir and stat.
			continue
		}
		etag := statETag(info)
		if f.contentETags {
			data, err := os.ReadFile(filepath.Join(f.root, d.Name()))
			if err != nil {
				continue
			}
			etag = Checksum(data)
		}
		out = append(out, models.DocumentInfo{
			Key:       d.Name(),
			Size:      info.Size(),
			ETag:      etag,
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Read returns the raw bytes stored under key.
func (f *FS) Read(_ context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(f.root, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: read %s: %w", key, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s: %w: %w", key, apperr.ErrStoreUnavailable, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(_ context.Context, key string, content []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	abs := filepath.Join(f.root, key)

	tmp, err := os.CreateTemp(f.root, ".ecglabel-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w: %w", apperr.ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w: %w", apperr.ErrStoreUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w: %w", apperr.ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w: %w", apperr.ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w: %w", apperr.ErrStoreUnavailable, err)
	}
	success = true
	return nil
}

// readDirUnsorted is os.ReadDir without the sort.
func readDirUnsorted(dir string) ([]fs.DirEntry, error) {
	d, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return d.ReadDir(-1)
}

func statETag(info fs.FileInfo) string {
	return fmt.Sprintf("%x-%x", info.Size(), info.ModTime().UnixNano())
}

// Checksum is the content etag: hex SHA-256 of the data.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
