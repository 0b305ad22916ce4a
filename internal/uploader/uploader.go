// Package uploader defines the boundary interface for shipping closed DTF
// files to an object store. No cloud SDK is wired in (out of scope, per
// spec.md §1); NoopUploader is the only production-reachable implementation.
package uploader

import (
	"context"
	"log/slog"
	"time"
)

// Result records the outcome of a successful upload.
type Result struct {
	RemoteName string
	UploadedAt time.Time
}

// Uploader ships a closed DTF file at path to an object store.
type Uploader interface {
	Upload(ctx context.Context, path string) (Result, error)
}

// NoopUploader logs the intent and returns an empty Result. It is the
// default wired into the server when no object-store backend is configured.
type NoopUploader struct{}

// Upload implements Uploader by doing nothing but logging.
func (NoopUploader) Upload(ctx context.Context, path string) (Result, error) {
	slog.Debug("uploader: skipping upload, no backend configured", "path", path)
	return Result{}, nil
}
