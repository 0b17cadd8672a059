package domain

import (
	"context"
	"io"
	"time"
)

// FileStore holds uploaded inputs and produced results on disk.
type FileStore interface {
	SaveUpload(ctx context.Context, r io.Reader, originalName string) (string, error)
	// RemoveUpload deletes a stored upload. A missing file is not an error.
	RemoveUpload(path string) error
	ResultPath(name string) (string, error)
	RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
