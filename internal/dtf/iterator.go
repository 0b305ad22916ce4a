package dtf

import (
	"io"

	"github.com/dtfdb/dtfd/internal/record"
)

// Iterator is a lazy, finite, restartable reader over a DTF file's batch
// section. It holds the current batch's decoded records plus a per-batch
// index and an absolute index across the whole file, sharing a single
// underlying reader so repeated scans avoid reopening the file.
type Iterator struct {
	r   io.ReadSeeker
	end int // exclusive absolute index bound; -1 means unbounded

	batch    []record.Update
	batchPos int
	abs      int
	done     bool
}

// NewIterator constructs an Iterator starting at the beginning of the batch
// section (index 0), with no upper bound.
func NewIterator(r io.ReadSeeker) *Iterator {
	it := &Iterator{r: r, end: -1}
	it.Reset()
	return it
}

// NewIteratorTo constructs an Iterator bounded to stop after absolute index
// endIndex (inclusive), i.e. it yields at most endIndex+1 records.
func NewIteratorTo(r io.ReadSeeker, endIndex int) *Iterator {
	it := &Iterator{r: r, end: endIndex + 1}
	it.Reset()
	return it
}

// NewIteratorFromOffset constructs an Iterator that has already advanced
// past the first k records.
func NewIteratorFromOffset(r io.ReadSeeker, k int) (*Iterator, error) {
	it := &Iterator{r: r, end: -1}
	it.Reset()
	for i := 0; i < k; i++ {
		if _, ok, err := it.Next(); err != nil {
			return nil, err
		} else if !ok {
			break
		}
	}
	return it, nil
}

// Reset rewinds the iterator to the start of the batch section and clears
// all batch state.
func (it *Iterator) Reset() {
	it.r.Seek(HeaderSize, io.SeekStart)
	it.batch = nil
	it.batchPos = 0
	it.abs = 0
	it.done = false
}

// Next returns the next record, or ok=false when the iterator is exhausted
// (either by reaching its end bound or the end of the batch stream).
func (it *Iterator) Next() (record.Update, bool, error) {
	if it.done {
		return record.Update{}, false, nil
	}
	if it.end >= 0 && it.abs >= it.end {
		it.done = true
		return record.Update{}, false, nil
	}
	for it.batchPos >= len(it.batch) {
		batch, ok, err := it.readNextBatch()
		if err != nil {
			return record.Update{}, false, err
		}
		if !ok {
			it.done = true
			return record.Update{}, false, nil
		}
		it.batch = batch
		it.batchPos = 0
	}
	u := it.batch[it.batchPos]
	it.batchPos++
	it.abs++
	return u, true, nil
}

// Collect drains the iterator and returns every remaining record.
func (it *Iterator) Collect() ([]record.Update, error) {
	var out []record.Update
	for {
		u, ok, err := it.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, u)
	}
}

func (it *Iterator) readNextBatch() ([]record.Update, bool, error) {
	tag, err := readByteOrEOF(it.r)
	if err != nil {
		return nil, false, err
	}
	if tag == nil || *tag != batchTag {
		return nil, false, nil
	}
	hdr, err := readBatchHeader(it.r)
	if err != nil {
		return nil, false, err
	}
	body := make([]byte, int(hdr.count)*record.DeltaSize)
	if _, err := io.ReadFull(it.r, body); err != nil {
		return nil, false, err
	}
	out := make([]record.Update, hdr.count)
	for i := range out {
		u, err := record.DecodeDelta(body[i*record.DeltaSize:(i+1)*record.DeltaSize], hdr.refTs, hdr.refSeq)
		if err != nil {
			return nil, false, err
		}
		out[i] = u
	}
	return out, true, nil
}
