// Package storage selects the blob store that receives exported catalog files.
// The implementations live in the local and gcs subpackages.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"google.golang.org/api/option"

	"github.com/JakeFAU/midcolumbia-catalog/internal/storage/gcs"
	"github.com/JakeFAU/midcolumbia-catalog/internal/storage/local"
)

// Providers accepted by Open.
const (
	ProviderNone  = "none"
	ProviderLocal = "local"
	ProviderGCS   = "gcs"
)

// BlobStore saves an object and returns its URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider  string
	LocalDir  string
	GCSBucket string
	// GCSOptions are passed to the GCS client, mainly to point tests at a fake server.
	GCSOptions []option.ClientOption
}

// Open returns the configured store and a function releasing it. A nil store
// means exports are disabled.
func Open(ctx context.Context, cfg Config) (BlobStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Provider {
	case "", ProviderNone:
		return nil, noop, nil
	case ProviderLocal:
		store, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, noop, fmt.Errorf("open local blob store: %w", err)
		}
		return store, noop, nil
	case ProviderGCS:
		store, err := gcs.Dial(ctx, gcs.Config{Bucket: cfg.GCSBucket}, cfg.GCSOptions...)
		if err != nil {
			return nil, noop, fmt.Errorf("open gcs blob store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown blob store provider %q", cfg.Provider)
	}
}

// ObjectPath is the export location of a file: prefix/runID/base name.
func ObjectPath(prefix, runID, filename string) string {
	return path.Join(prefix, runID, filepath.Base(filename))
}

// Export copies the file at localPath to store under ObjectPath.
func Export(ctx context.Context, store BlobStore, prefix, runID, localPath, contentType string) (string, error) {
	if store == nil {
		return "", fmt.Errorf("no blob store configured")
	}
	// #nosec G304 -- the path is the extractor's configured output.
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open export source: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	uri, err := store.PutObject(ctx, ObjectPath(prefix, runID, localPath), contentType, f)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", localPath, err)
	}
	return uri, nil
}
