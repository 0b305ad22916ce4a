// Package query implements the GET planner: unifying a book's in-memory
// tail with its on-disk DTF history and rendering the result in one of
// three wire formats.
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dtfdb/dtfd/internal/bookstore"
	"github.com/dtfdb/dtfd/internal/dtf"
	"github.com/dtfdb/dtfd/internal/dtfindex"
	"github.com/dtfdb/dtfd/internal/record"
)

// Format is a GET response rendering.
type Format string

const (
	// FormatDTF is the default: a bare batch stream (no file header).
	FormatDTF  Format = "DTF"
	FormatJSON Format = "JSON"
	FormatCSV  Format = "CSV"
)

// ParseFormat maps a GET "AS <word>" token to a Format. An empty string is
// the default, DTF.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(s) {
	case "":
		return FormatDTF, nil
	case "DTF":
		return FormatDTF, nil
	case "JSON":
		return FormatJSON, nil
	case "CSV":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("query: unknown format %q", s)
	}
}

// Request describes one GET invocation (spec.md §4.7).
type Request struct {
	All      bool
	Count    int
	HasRange bool
	MinTs    uint64
	MaxTs    uint64
	InMem    bool
	Format   Format
}

// Execute runs the five-step GET algorithm against book, extending with
// book's on-disk history (via the folder index rooted at dtfDir) when the
// in-memory tail doesn't satisfy the request, and renders the result in
// req.Format.
func Execute(book *bookstore.Book, dtfDir string, req Request) ([]byte, error) {
	if !req.All && req.Count == 0 {
		return nil, fmt.Errorf("query: not enough items to return")
	}

	result := filterInMemory(book.Tail(), req.HasRange, req.MinTs, req.MaxTs)

	if req.InMem {
		return render(result, req.Format)
	}

	if req.All || req.Count <= len(result) {
		return render(truncate(result, req), req.Format)
	}

	if req.HasRange {
		err := dtfindex.ScanFilesForRange(dtfDir, book.Name, req.MinTs, req.MaxTs, func(u record.Update) error {
			result = append(result, u)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if !req.All && req.Count > len(result) {
		return nil, fmt.Errorf("query: requested %d records, only %d available", req.Count, len(result))
	}
	return render(truncate(result, req), req.Format)
}

// filterInMemory applies the range rule: inclusive on both ends, the same
// rule the disk scanner uses, per the already-resolved open question on
// range-filter symmetry.
func filterInMemory(vec []record.Update, hasRange bool, minTs, maxTs uint64) []record.Update {
	if !hasRange {
		out := make([]record.Update, len(vec))
		copy(out, vec)
		return out
	}
	out := make([]record.Update, 0, len(vec))
	for _, u := range vec {
		if u.Ts >= minTs && u.Ts <= maxTs {
			out = append(out, u)
		}
	}
	return out
}

func truncate(result []record.Update, req Request) []record.Update {
	if req.All || req.Count >= len(result) {
		return result
	}
	return result[:req.Count]
}

func render(ups []record.Update, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return renderJSON(ups)
	case FormatCSV:
		return renderCSV(ups), nil
	case FormatDTF, "":
		return renderDTF(ups)
	default:
		return nil, fmt.Errorf("query: unknown format %q", format)
	}
}

type jsonRecord struct {
	Ts      uint64  `json:"ts"`
	Seq     uint32  `json:"seq"`
	IsTrade bool    `json:"is_trade"`
	IsBid   bool    `json:"is_bid"`
	Price   float32 `json:"price"`
	Size    float32 `json:"size"`
}

func renderJSON(ups []record.Update) ([]byte, error) {
	out := make([]jsonRecord, len(ups))
	for i, u := range ups {
		out[i] = jsonRecord{
			Ts:      u.Ts / 1000,
			Seq:     u.Seq,
			IsTrade: u.IsTrade,
			IsBid:   u.IsBid,
			Price:   u.Price,
			Size:    u.Size,
		}
	}
	return json.Marshal(out)
}

func renderCSV(ups []record.Update) []byte {
	lines := make([]string, len(ups))
	for i, u := range ups {
		lines[i] = fmt.Sprintf("%d, %d, %s, %s, %s, %s",
			u.Ts/1000, u.Seq, csvFlag(u.IsTrade), csvFlag(u.IsBid),
			strconv.FormatFloat(float64(u.Price), 'f', -1, 32),
			strconv.FormatFloat(float64(u.Size), 'f', -1, 32))
	}
	return []byte(strings.Join(lines, "\n"))
}

func csvFlag(b bool) string {
	if b {
		return "t"
	}
	return "f"
}

func renderDTF(ups []record.Update) ([]byte, error) {
	var buf bytes.Buffer
	if err := dtf.WriteBatchStream(&buf, ups); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
