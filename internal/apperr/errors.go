// Package apperr defines the error taxonomy shared by stores, ingestion and
// the API boundary.
package apperr

import (
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrValidationFailed = errors.New("validation failed")
)

// ValidationError carries per-field messages. It matches ErrValidationFailed
// under errors.Is.
type ValidationError struct {
	Fields map[string]string
}

// Validation wraps err (typically validation.Errors) as a ValidationError.
// A nil err returns nil.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	ve := &ValidationError{Fields: map[string]string{}}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		for k, v := range fieldErrs {
			if v != nil {
				ve.Fields[k] = v.Error()
			}
		}
		return ve
	}
	ve.Fields[""] = err.Error()
	return ve
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			parts = append(parts, e.Fields[k])
			continue
		}
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}
