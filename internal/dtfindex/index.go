// Package dtfindex enumerates DTF files in a directory and merge-scans the
// subset that can contain records for a given symbol and timestamp window.
package dtfindex

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/dtfdb/dtfd/internal/dtf"
)

// candidate is a file whose header has already been read and matched the
// query symbol and window.
type candidate struct {
	path  string
	minTs uint64
	maxTs uint64
}

// ScanFilesForRange enumerates dir, retains files whose header symbol equals
// symbol and whose [min_ts, max_ts] intersects [minTs, maxTs], orders them by
// the file's min_ts ascending, and range-scans each in order, emitting every
// matching record to sink via dtf.Range.
func ScanFilesForRange(dir, symbol string, minTs, maxTs uint64, sink dtf.Sink) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		meta, fileMinTs, ok := probeHeader(path)
		if !ok {
			continue
		}
		if meta.Symbol != symbol {
			continue
		}
		if !intersects(minTs, maxTs, fileMinTs, meta.MaxTs) {
			continue
		}
		candidates = append(candidates, candidate{path: path, minTs: fileMinTs, maxTs: meta.MaxTs})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].minTs < candidates[j].minTs
	})

	for _, c := range candidates {
		if err := scanOne(c.path, minTs, maxTs, sink); err != nil {
			return err
		}
	}
	return nil
}

// intersects implements the window test from spec.md §4.3:
// target_min <= file_max && target_max >= file_min.
func intersects(targetMin, targetMax, fileMin, fileMax uint64) bool {
	return targetMin <= fileMax && targetMax >= fileMin
}

// probeHeader reads just the header of path, plus the ts of its first
// record (needed for the min_ts side of the intersection test, since only
// max_ts is a header field). Unreadable files are skipped with a log line,
// per spec.md §4.3.
func probeHeader(path string) (dtf.Meta, uint64, bool) {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("dtfindex: skipping unreadable file", "path", path, "error", err)
		return dtf.Meta{}, 0, false
	}
	defer f.Close()

	meta, err := dtf.ReadMeta(f)
	if err != nil {
		slog.Warn("dtfindex: skipping file with unreadable header", "path", path, "error", err)
		return dtf.Meta{}, 0, false
	}
	if meta.Count == 0 {
		return meta, 0, true
	}

	firstTs, ok, err := dtf.FirstTs(f)
	if err != nil {
		slog.Warn("dtfindex: skipping file with unreadable body", "path", path, "error", err)
		return dtf.Meta{}, 0, false
	}
	if !ok {
		return meta, 0, true
	}
	return meta, firstTs, true
}

func scanOne(path string, minTs, maxTs uint64, sink dtf.Sink) error {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("dtfindex: skipping unreadable file during scan", "path", path, "error", err)
		return nil
	}
	defer f.Close()
	return dtf.Range(f, minTs, maxTs, sink)
}
