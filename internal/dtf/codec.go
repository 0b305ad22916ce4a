package dtf

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/dtfdb/dtfd/internal/record"
)

func beUint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }
func beUint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func beUint16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }

// Encode writes a complete DTF file to w: magic, symbol, count, max_ts
// (the last record's ts), then the batch section starting at HeaderSize.
// ups is assumed to already be sorted by (ts, seq); Encode does not sort it.
//
// Encode refuses empty input (ErrEmptyInput): an empty file has no defined
// max_ts, so the codec declines to produce one.
func Encode(w io.WriteSeeker, symbol string, ups []record.Update) error {
	if len(ups) == 0 {
		return ErrEmptyInput
	}
	if err := writeHeader(w, symbol, uint64(len(ups)), ups[len(ups)-1].Ts); err != nil {
		return err
	}
	if _, err := w.Seek(HeaderSize, io.SeekStart); err != nil {
		return err
	}
	return WriteBatchStream(w, ups)
}

// EncodeFile creates (or truncates) the file at path and encodes ups into it.
func EncodeFile(path string, symbol string, ups []record.Update) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Encode(f, symbol, ups)
}

// Decode reads the entire batch section of a file positioned at the start
// (r will be seeked to HeaderSize), returning every record in file order.
func Decode(r io.ReadSeeker) ([]record.Update, error) {
	if _, err := r.Seek(HeaderSize, io.SeekStart); err != nil {
		return nil, err
	}
	return DecodeBatchStream(r)
}

// Append opens the file at path, filters ups to those with ts strictly
// greater than the file's current max_ts, and appends the survivors as new
// batches, rewriting the count and max_ts header fields. If the filtered set
// is empty, Append is a no-op success.
//
// The filtered survivors must themselves be non-decreasing by ts; a survivor
// that regresses relative to the running max signals a caller bug (the
// server's append contract is responsible for only ever proposing sorted
// input) and Append panics rather than silently corrupting the file.
func Append(path string, ups []record.Update) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	meta, err := ReadMeta(f)
	if err != nil {
		return err
	}

	survivors := make([]record.Update, 0, len(ups))
	runningMax := meta.MaxTs
	for _, u := range ups {
		if u.Ts <= meta.MaxTs {
			continue
		}
		if u.Ts < runningMax {
			panic(fmt.Sprintf("dtf: append: record ts %d precedes running max_ts %d within the filtered set", u.Ts, runningMax))
		}
		runningMax = u.Ts
		survivors = append(survivors, u)
	}
	if len(survivors) == 0 {
		return nil
	}

	newCount := meta.Count + uint64(len(survivors))
	newMaxTs := survivors[len(survivors)-1].Ts
	if err := rewriteCountAndMaxTs(f, newCount, newMaxTs); err != nil {
		return err
	}

	var seekTo int64
	if meta.Count == 0 {
		seekTo = HeaderSize
	} else {
		info, err := f.Stat()
		if err != nil {
			return err
		}
		seekTo = info.Size()
	}
	if _, err := f.Seek(seekTo, io.SeekStart); err != nil {
		return err
	}
	return WriteBatchStream(f, survivors)
}

// FirstTs returns the ts of the first record in the batch section, i.e. the
// file's min_ts (spec.md §3: "min_ts is the first record's ts"). This is not
// a stored header field — only max_ts is — but a batch's reference ts always
// equals its first record's ts, so this costs one 14-byte header read rather
// than a full decode. ok is false for a file with zero records.
func FirstTs(r io.ReadSeeker) (ts uint64, ok bool, err error) {
	if _, err := r.Seek(HeaderSize, io.SeekStart); err != nil {
		return 0, false, err
	}
	tag, err := readByteOrEOF(r)
	if err != nil {
		return 0, false, err
	}
	if tag == nil || *tag != batchTag {
		return 0, false, nil
	}
	hdr, err := readBatchHeader(r)
	if err != nil {
		return 0, false, err
	}
	return hdr.refTs, true, nil
}

// Sink receives records matched by a Range scan, in ascending (ts, seq)
// order, and may return an error to abort the scan early.
type Sink func(record.Update) error

// Range seeks r to the start of the batch section and emits every record
// with ts in [minTs, maxTs] to sink, in file order. A reversed query
// (minTs > maxTs) emits nothing.
func Range(r io.ReadSeeker, minTs, maxTs uint64, sink Sink) error {
	if minTs > maxTs {
		return nil
	}
	if _, err := r.Seek(HeaderSize, io.SeekStart); err != nil {
		return err
	}

	for {
		tag, err := readByteOrEOF(r)
		if err != nil {
			return err
		}
		if tag == nil {
			return nil
		}
		if *tag != batchTag {
			return nil
		}

		hdr, err := readBatchHeader(r)
		if err != nil {
			return err
		}
		bodyStart, err := currentOffset(r)
		if err != nil {
			return err
		}
		bodyLen := int64(hdr.count) * record.DeltaSize
		afterBody := bodyStart + bodyLen

		nextRefTs, hasNext, err := peekNextRefTs(r, afterBody)
		if err != nil {
			return err
		}

		// A batch of a sorted file holds ts values in [refTs, nextRefTs]:
		// its last records may share nextRefTs when the writer rotated on a
		// seq or length bound rather than on ts.
		switch {
		case maxTs < hdr.refTs:
			return nil
		case hasNext && minTs > nextRefTs:
			if _, err := r.Seek(afterBody, io.SeekStart); err != nil {
				return err
			}
			continue
		default:
			fullCover := hasNext && minTs <= hdr.refTs && maxTs >= nextRefTs
			if _, err := r.Seek(bodyStart, io.SeekStart); err != nil {
				return err
			}
			if err := scanBatchBody(r, hdr, int(hdr.count), minTs, maxTs, fullCover, sink); err != nil {
				return err
			}
			if _, err := r.Seek(afterBody, io.SeekStart); err != nil {
				return err
			}
		}
	}
}

type batchHeader struct {
	refTs  uint64
	refSeq uint32
	count  uint16
}

func readByteOrEOF(r io.Reader) (*byte, error) {
	var b [1]byte
	n, err := io.ReadFull(r, b[:])
	if n == 0 {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return &b[0], nil
}

func readBatchHeader(r io.Reader) (batchHeader, error) {
	var buf [14]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return batchHeader{}, fmt.Errorf("dtf: truncated batch header: %w", err)
	}
	return batchHeader{
		refTs:  beUint64(buf[0:8]),
		refSeq: beUint32(buf[8:12]),
		count:  beUint16(buf[12:14]),
	}, nil
}

func currentOffset(s io.Seeker) (int64, error) {
	return s.Seek(0, io.SeekCurrent)
}

// peekNextRefTs seeks to afterBody (the next batch's tag) and reads that
// batch's ref_ts, if there is one. It leaves r positioned past the bytes it
// read; seeking back to where the caller needs to be is the caller's
// responsibility.
func peekNextRefTs(r io.ReadSeeker, afterBody int64) (uint64, bool, error) {
	if _, err := r.Seek(afterBody, io.SeekStart); err != nil {
		return 0, false, err
	}
	tag, err := readByteOrEOF(r)
	if err != nil {
		return 0, false, err
	}
	if tag == nil || *tag != batchTag {
		return 0, false, nil
	}
	var refTsBuf [8]byte
	if _, err := io.ReadFull(r, refTsBuf[:]); err != nil {
		return 0, false, fmt.Errorf("dtf: truncated batch header while peeking: %w", err)
	}
	return beUint64(refTsBuf[:]), true, nil
}

func scanBatchBody(r io.Reader, hdr batchHeader, count int, minTs, maxTs uint64, fullCover bool, sink Sink) error {
	body := make([]byte, count*record.DeltaSize)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("dtf: truncated batch body: %w", err)
	}
	for i := 0; i < count; i++ {
		u, err := record.DecodeDelta(body[i*record.DeltaSize:(i+1)*record.DeltaSize], hdr.refTs, hdr.refSeq)
		if err != nil {
			return err
		}
		if fullCover || (u.Ts >= minTs && u.Ts <= maxTs) {
			if err := sink(u); err != nil {
				return err
			}
		}
	}
	return nil
}
