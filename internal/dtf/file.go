// Package dtf implements the Dense Tick Format codec: a delta-compressed,
// batched, seekable binary layout for Update sequences, with deterministic
// append, bounded random range retrieval, and streaming iteration.
package dtf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic gates opening a DTF file.
var Magic = [5]byte{0x44, 0x54, 0x46, 0x90, 0x01}

const (
	offMagic    = 0
	offSymbol   = 5
	symbolSize  = 20
	offCount    = 25
	offMaxTs    = 33
	offReserved = 41
	reservedLen = 39

	// HeaderSize is the fixed size of the file header; the batch section
	// begins immediately after it.
	HeaderSize = 80

	batchTag = 0x01
)

// ErrBadMagic is returned when a file does not begin with the DTF magic.
var ErrBadMagic = errors.New("dtf: bad magic")

// ErrEmptyInput is returned by Encode when asked to write a file with no
// records: such a file would have no defined max_ts, so the codec declines
// to produce one. Callers must ensure non-empty input when a valid file is
// required.
var ErrEmptyInput = errors.New("dtf: cannot encode an empty update sequence")

// Meta is the parsed fixed header of a DTF file.
type Meta struct {
	Symbol string
	Count  uint64
	MaxTs  uint64
}

func encodeSymbol(symbol string) ([symbolSize]byte, error) {
	var buf [symbolSize]byte
	if len(symbol) > symbolSize {
		return buf, fmt.Errorf("dtf: symbol %q exceeds %d bytes", symbol, symbolSize)
	}
	copy(buf[:], symbol)
	for i := len(symbol); i < symbolSize; i++ {
		buf[i] = ' '
	}
	return buf, nil
}

func decodeSymbol(buf []byte) string {
	end := len(buf)
	for end > 0 && buf[end-1] == ' ' {
		end--
	}
	return string(buf[:end])
}

// writeHeader writes the full 80-byte header at the current position of w,
// which must be offset 0.
func writeHeader(w io.Writer, symbol string, count, maxTs uint64) error {
	symBuf, err := encodeSymbol(symbol)
	if err != nil {
		return err
	}
	var hdr [HeaderSize]byte
	copy(hdr[offMagic:], Magic[:])
	copy(hdr[offSymbol:], symBuf[:])
	binary.BigEndian.PutUint64(hdr[offCount:offCount+8], count)
	binary.BigEndian.PutUint64(hdr[offMaxTs:offMaxTs+8], maxTs)
	// hdr[offReserved:] is already zero.
	_, err = w.Write(hdr[:])
	return err
}

// ReadMeta reads and parses the fixed header from r, which must be
// positioned (or seekable to) offset 0.
func ReadMeta(r io.ReadSeeker) (Meta, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Meta{}, err
	}
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Meta{}, fmt.Errorf("dtf: read header: %w", err)
	}
	if [5]byte(hdr[offMagic:offMagic+5]) != Magic {
		return Meta{}, ErrBadMagic
	}
	return Meta{
		Symbol: decodeSymbol(hdr[offSymbol : offSymbol+symbolSize]),
		Count:  binary.BigEndian.Uint64(hdr[offCount : offCount+8]),
		MaxTs:  binary.BigEndian.Uint64(hdr[offMaxTs : offMaxTs+8]),
	}, nil
}

// rewriteCountAndMaxTs overwrites just the count and max_ts header fields,
// leaving the rest of the header untouched.
func rewriteCountAndMaxTs(w io.WriteSeeker, count, maxTs uint64) error {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], count)
	binary.BigEndian.PutUint64(buf[8:16], maxTs)
	if _, err := w.Seek(offCount, io.SeekStart); err != nil {
		return err
	}
	_, err := w.Write(buf[:])
	return err
}
