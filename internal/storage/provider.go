// Package storage defines the flat key/blob stores that hold ECG documents
// and their annotation records.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/ecglabel/internal/apperr"
	"github.com/starford/ecglabel/internal/models"
)

// Provider is a flat key namespace of blobs.
type Provider interface {
	// List returns every key ending in suffix (case-insensitive), in the
	// order the backing medium enumerates them.
	List(ctx context.Context, suffix string) ([]models.DocumentInfo, error)
	// Read returns the blob stored under key.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write stores data under key, replacing any previous blob.
	Write(ctx context.Context, key string, data []byte) error
}

// ValidateKey rejects keys that are not plain names.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) != key {
		return fmt.Errorf("storage: invalid key %q: %w", key, apperr.ErrValidationFailed)
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("storage: invalid key %q: %w", key, apperr.ErrValidationFailed)
	}
	return nil
}

func hasSuffixFold(key, suffix string) bool {
	return len(key) >= len(suffix) && strings.EqualFold(key[len(key)-len(suffix):], suffix)
}
