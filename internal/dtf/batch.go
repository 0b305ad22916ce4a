package dtf

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dtfdb/dtfd/internal/record"
)

const (
	maxBatchTsSpan  = 0xFFFF // ts - ref_ts must fit in 16 bits
	maxBatchSeqSpan = 0x0F   // seq - ref_seq is bounded to <=15 by writer policy
	maxBatchLen     = 0xFFFF // batch length must fit in 16 bits
)

// batchWriter accumulates Updates into reference-framed batches and flushes
// each closed batch to an underlying io.Writer.
type batchWriter struct {
	w       io.Writer
	refTs   uint64
	refSeq  uint32
	count   int
	body    []byte
	started bool
}

func newBatchWriter(w io.Writer) *batchWriter {
	return &batchWriter{w: w}
}

// shouldRotate reports whether adding u to the current batch would violate
// a batch bound, requiring the current batch to be closed and a new one
// started with u as its reference.
func (bw *batchWriter) shouldRotate(u record.Update) bool {
	if !bw.started {
		return false
	}
	if u.Ts < bw.refTs || u.Seq < bw.refSeq {
		return true
	}
	if u.Ts-bw.refTs >= maxBatchTsSpan {
		return true
	}
	if u.Seq-bw.refSeq >= maxBatchSeqSpan {
		return true
	}
	if bw.count >= maxBatchLen {
		return true
	}
	return false
}

// Add serializes u into the current batch, rotating to a new batch first if
// any bound would otherwise be exceeded.
func (bw *batchWriter) Add(u record.Update) error {
	if bw.shouldRotate(u) {
		if err := bw.flush(); err != nil {
			return err
		}
	}
	if !bw.started {
		bw.refTs = u.Ts
		bw.refSeq = u.Seq
		bw.count = 0
		bw.body = bw.body[:0]
		bw.started = true
	}
	delta := u.EncodeDelta(bw.refTs, bw.refSeq)
	bw.body = append(bw.body, delta[:]...)
	bw.count++
	return nil
}

// flush writes out the current batch (if any records are buffered) and
// resets writer state so the next Add starts a fresh batch.
func (bw *batchWriter) flush() error {
	if !bw.started || bw.count == 0 {
		bw.started = false
		return nil
	}
	var hdr [15]byte
	hdr[0] = batchTag
	binary.BigEndian.PutUint64(hdr[1:9], bw.refTs)
	binary.BigEndian.PutUint32(hdr[9:13], bw.refSeq)
	binary.BigEndian.PutUint16(hdr[13:15], uint16(bw.count))
	if _, err := bw.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := bw.w.Write(bw.body); err != nil {
		return err
	}
	bw.started = false
	bw.count = 0
	bw.body = bw.body[:0]
	return nil
}

// Close flushes the final in-progress batch, if any.
func (bw *batchWriter) Close() error {
	return bw.flush()
}

// WriteBatchStream encodes ups (in input order) as a sequence of DTF batches
// to w, with no file header. This is the shape used both for the batch
// section of a full file (after the 80-byte header) and for the "AS DTF"
// query output format, which is a bare batch stream meant to be piped back
// into a reader positioned at the start of a batch section.
func WriteBatchStream(w io.Writer, ups []record.Update) error {
	bw := newBatchWriter(w)
	for _, u := range ups {
		if err := bw.Add(u); err != nil {
			return err
		}
	}
	return bw.Close()
}

// DecodeBatchStream decodes every batch from r until a non-0x01 tag byte or
// EOF is encountered, returning all records in file order.
func DecodeBatchStream(r io.Reader) ([]record.Update, error) {
	var out []record.Update
	for {
		var tag [1]byte
		n, err := io.ReadFull(r, tag[:])
		if n == 0 && err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		if tag[0] != batchTag {
			return out, nil
		}
		var hdr [14]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return out, fmt.Errorf("dtf: truncated batch header: %w", err)
		}
		refTs := binary.BigEndian.Uint64(hdr[0:8])
		refSeq := binary.BigEndian.Uint32(hdr[8:12])
		count := binary.BigEndian.Uint16(hdr[12:14])
		body := make([]byte, int(count)*record.DeltaSize)
		if _, err := io.ReadFull(r, body); err != nil {
			return out, fmt.Errorf("dtf: truncated batch body: %w", err)
		}
		for i := 0; i < int(count); i++ {
			u, err := record.DecodeDelta(body[i*record.DeltaSize:(i+1)*record.DeltaSize], refTs, refSeq)
			if err != nil {
				return out, err
			}
			out = append(out, u)
		}
	}
}
