package storage

import (
	"context"
	"fmt"
	"os"
)

// Backends.
const (
	BackendLocal = "local"
	BackendAzure = "azure"
)

// Options selects and configures one Provider.
type Options struct {
	Backend string
	// Path is the local directory (local backend).
	Path string
	// ConnectionString, Container and Prefix configure the azure backend.
	ConnectionString string
	Container        string
	Prefix           string
	// ContentETags enables content checksums as local listing etags.
	ContentETags bool
}

// Open builds the Provider described by opts. For the local backend the
// directory is created when missing.
func Open(ctx context.Context, opts Options) (Provider, error) {
	switch opts.Backend {
	case BackendLocal, "":
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create dir %s: %w", opts.Path, err)
		}
		var fsOpts []FSOption
		if opts.ContentETags {
			fsOpts = append(fsOpts, WithContentETags())
		}
		return NewFS(opts.Path, fsOpts...)
	case BackendAzure:
		return NewAzure(ctx, opts.ConnectionString, opts.Container, opts.Prefix)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}
