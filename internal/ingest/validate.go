package ingest

import (
	"bytes"
	"fmt"

	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/pagetree"

	"github.com/starford/ecglabel/internal/apperr"
)

// ValidatePDF checks that data opens as a PDF document with at least one
// page and returns the page count. Content is not interpreted further.
func ValidatePDF(data []byte) (int, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\n\r "), []byte("%PDF-")) {
		return 0, fmt.Errorf("missing %%PDF header: %w", apperr.ErrValidationFailed)
	}
	r, err := pdf.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("unreadable pdf: %w: %w", apperr.ErrValidationFailed, err)
	}
	defer r.Close()

	n, err := pagetree.NumPages(r)
	if err != nil {
		return 0, fmt.Errorf("unreadable page tree: %w: %w", apperr.ErrValidationFailed, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("document has no pages: %w", apperr.ErrValidationFailed)
	}
	return n, nil
}
