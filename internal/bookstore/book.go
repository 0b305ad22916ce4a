// Package bookstore holds the server's per-symbol order book state: the
// in-memory tail of recent updates, durable flushing to DTF files, and the
// subscription and connection registries. Every exported method assumes
// single-threaded access — the broker goroutine is the sole owner of a
// Store, exactly as spec.md §4.6/§5 requires — so nothing here takes a lock.
package bookstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dtfdb/dtfd/internal/dtf"
	"github.com/dtfdb/dtfd/internal/record"
	"github.com/dtfdb/dtfd/internal/uploader"
)

// Book is one symbol's order book: an in-memory tail plus the durable DTF
// file it flushes into.
type Book struct {
	Name string

	vec          []record.Update
	nominalCount uint64
	inMemory     bool

	dir           string
	autoflush     bool
	flushInterval int
	uploader      uploader.Uploader
}

func newBook(name, dir string, autoflush bool, flushInterval int, up uploader.Uploader) *Book {
	if up == nil {
		up = uploader.NoopUploader{}
	}
	return &Book{
		Name:          name,
		dir:           dir,
		autoflush:     autoflush,
		flushInterval: flushInterval,
		uploader:      up,
	}
}

func (b *Book) path() string {
	return filepath.Join(b.dir, b.Name+".dtf")
}

// DiskSize returns the durable DTF file's size in bytes, or 0 if it doesn't
// exist yet. Used to feed internal/metricsexport's per-book size batch.
func (b *Book) DiskSize() int64 {
	fi, err := os.Stat(b.path())
	if err != nil {
		return 0
	}
	return fi.Size()
}

// MemSize approximates the in-memory buffer's footprint in bytes, using the
// fixed 21-byte raw Update encoding as the per-record cost.
func (b *Book) MemSize() int64 {
	return int64(len(b.vec)) * record.RawSize
}

// NominalCount is the durable record count as of the last flush/clear/load,
// plus every record added in memory since.
func (b *Book) NominalCount() uint64 { return b.nominalCount }

// InMemoryCount is the number of records currently buffered in memory.
func (b *Book) InMemoryCount() int { return len(b.vec) }

// InMemory reports whether this book's entire durable history (if any) is
// currently mirrored in memory (true only right after Load).
func (b *Book) InMemory() bool { return b.inMemory }

// Tail returns the in-memory buffer without copying; callers must not
// mutate it.
func (b *Book) Tail() []record.Update { return b.vec }

// Add appends u to the in-memory buffer and triggers a flush when autoflush
// is enabled and the buffer has just reached a positive multiple of
// flushInterval.
func (b *Book) Add(u record.Update) error {
	b.vec = append(b.vec, u)
	b.nominalCount++
	if b.autoflush && b.flushInterval > 0 && len(b.vec)%b.flushInterval == 0 {
		return b.Flush()
	}
	return nil
}

// Flush appends the in-memory buffer to this book's DTF file (creating it
// if absent), then clears the buffer. Flushing an empty buffer is a no-op.
func (b *Book) Flush() error {
	if len(b.vec) == 0 {
		return nil
	}
	path := b.path()
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(b.dir, 0o755); err != nil {
			return err
		}
		if err := dtf.EncodeFile(path, b.Name, b.vec); err != nil {
			return fmt.Errorf("bookstore: flush %s: %w", b.Name, err)
		}
	} else {
		if err := dtf.Append(path, b.vec); err != nil {
			return fmt.Errorf("bookstore: flush %s: %w", b.Name, err)
		}
	}
	b.vec = nil
	b.inMemory = false

	if _, err := b.uploader.Upload(context.Background(), path); err != nil {
		slog.Warn("bookstore: upload failed", "book", b.Name, "path", path, "error", err)
	}
	return nil
}

// Clear drops the in-memory buffer without persisting it, and reconciles
// nominalCount from the durable file's header (zero if no file exists yet).
func (b *Book) Clear() error {
	b.vec = nil
	b.inMemory = false

	f, err := os.Open(b.path())
	if err != nil {
		if os.IsNotExist(err) {
			b.nominalCount = 0
			return nil
		}
		return err
	}
	defer f.Close()

	meta, err := dtf.ReadMeta(f)
	if err != nil {
		return err
	}
	b.nominalCount = meta.Count
	return nil
}

// Load reads this book's entire durable file into memory. A missing file or
// a book already fully loaded is a no-op, not an error — a freshly created
// book has nothing on disk yet.
func (b *Book) Load() error {
	if b.inMemory {
		return nil
	}
	f, err := os.Open(b.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("bookstore: load %s: %w", b.Name, err)
	}
	defer f.Close()

	ups, err := dtf.Decode(f)
	if err != nil {
		return fmt.Errorf("bookstore: load %s: %w", b.Name, err)
	}
	b.vec = ups
	b.nominalCount = uint64(len(ups))
	b.inMemory = true
	return nil
}
