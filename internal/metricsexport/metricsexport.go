// Package metricsexport defines the boundary interface for pushing
// per-book size metrics to a time-series backend. No line-protocol client is
// wired in (out of scope, per spec.md §1); NoopExporter is the only
// production-reachable implementation.
package metricsexport

import (
	"context"
	"log/slog"
)

// BookSize is one book's disk and in-memory footprint at sample time.
type BookSize struct {
	Name    string
	DiskSz  int64
	MemSize int64
}

// Exporter posts a batch of per-book sizes to a metrics backend.
type Exporter interface {
	Export(ctx context.Context, sizes []BookSize) error
}

// NoopExporter logs the batch and discards it. It is the default wired into
// the server when no metrics backend is configured.
type NoopExporter struct{}

// Export implements Exporter by doing nothing but logging.
func (NoopExporter) Export(ctx context.Context, sizes []BookSize) error {
	slog.Debug("metricsexport: skipping export, no backend configured", "books", len(sizes))
	return nil
}
