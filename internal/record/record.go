// Package record defines the Update value type: the sole fixed-shape record
// stored by the Dense Tick Format (DTF) and carried over the wire protocol.
package record

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// RawSize is the length in bytes of an Update's raw (non-delta) wire encoding.
const RawSize = 21

// DeltaSize is the length in bytes of an Update's delta encoding within a batch.
const DeltaSize = 12

// flag bits within the single flags byte of both encodings.
const (
	flagIsBid   = 1 << 0
	flagIsTrade = 1 << 1
	flagKnown   = flagIsBid | flagIsTrade
)

// Update is one modification to a limit-order book, or one executed trade,
// for a single instrument.
type Update struct {
	Ts      uint64
	Seq     uint32
	IsTrade bool
	IsBid   bool
	Price   float32
	Size    float32
}

// Less reports whether u sorts strictly before other under the (ts, seq)
// total order.
func (u Update) Less(other Update) bool {
	if u.Ts != other.Ts {
		return u.Ts < other.Ts
	}
	return u.Seq < other.Seq
}

// Compare returns -1, 0, or 1 as u is less than, equal to, or greater than
// other under the (ts, seq) total order.
func (u Update) Compare(other Update) int {
	switch {
	case u.Ts < other.Ts || (u.Ts == other.Ts && u.Seq < other.Seq):
		return -1
	case u.Ts == other.Ts && u.Seq == other.Seq:
		return 0
	default:
		return 1
	}
}

func (u Update) flags() byte {
	var f byte
	if u.IsBid {
		f |= flagIsBid
	}
	if u.IsTrade {
		f |= flagIsTrade
	}
	return f
}

// EncodeRaw serializes u into the fixed 21-byte big-endian wire shape:
// ts(8) . seq(4) . flags(1) . price(4) . size(4).
func (u Update) EncodeRaw() [RawSize]byte {
	var buf [RawSize]byte
	binary.BigEndian.PutUint64(buf[0:8], u.Ts)
	binary.BigEndian.PutUint32(buf[8:12], u.Seq)
	buf[12] = u.flags()
	binary.BigEndian.PutUint32(buf[13:17], math.Float32bits(u.Price))
	binary.BigEndian.PutUint32(buf[17:21], math.Float32bits(u.Size))
	return buf
}

// AppendRaw appends u's raw encoding to dst and returns the extended slice.
func (u Update) AppendRaw(dst []byte) []byte {
	buf := u.EncodeRaw()
	return append(dst, buf[:]...)
}

// DecodeRaw parses a 21-byte raw encoding. It rejects unknown flag bits with
// an invalid-data error.
func DecodeRaw(b []byte) (Update, error) {
	if len(b) < RawSize {
		return Update{}, fmt.Errorf("record: raw buffer too short: got %d bytes, want %d", len(b), RawSize)
	}
	flags := b[12]
	if flags&^flagKnown != 0 {
		return Update{}, fmt.Errorf("record: invalid flag bits 0x%02x", flags)
	}
	return Update{
		Ts:      binary.BigEndian.Uint64(b[0:8]),
		Seq:     binary.BigEndian.Uint32(b[8:12]),
		IsBid:   flags&flagIsBid != 0,
		IsTrade: flags&flagIsTrade != 0,
		Price:   math.Float32frombits(binary.BigEndian.Uint32(b[13:17])),
		Size:    math.Float32frombits(binary.BigEndian.Uint32(b[17:21])),
	}, nil
}

// EncodeDelta serializes u relative to a batch reference (refTs, refSeq) into
// the fixed 12-byte shape: (ts-refTs) as u16 . (seq-refSeq) as u8 . flags(1) .
// price(4) . size(4).
//
// It panics if seq < refSeq at this call site: the batch writer is
// responsible for rotating references before that can happen, so reaching
// this condition here is a programmer error, not recoverable input.
func (u Update) EncodeDelta(refTs uint64, refSeq uint32) [DeltaSize]byte {
	if u.Seq < refSeq {
		panic(fmt.Sprintf("record: EncodeDelta called with seq %d < ref_seq %d", u.Seq, refSeq))
	}
	dts := u.Ts - refTs
	dseq := u.Seq - refSeq
	var buf [DeltaSize]byte
	binary.BigEndian.PutUint16(buf[0:2], uint16(dts))
	buf[2] = byte(dseq)
	buf[3] = u.flags()
	binary.BigEndian.PutUint32(buf[4:8], math.Float32bits(u.Price))
	binary.BigEndian.PutUint32(buf[8:12], math.Float32bits(u.Size))
	return buf
}

// DecodeDelta reconstructs an Update from its 12-byte delta encoding given the
// batch reference (refTs, refSeq).
func DecodeDelta(b []byte, refTs uint64, refSeq uint32) (Update, error) {
	if len(b) < DeltaSize {
		return Update{}, fmt.Errorf("record: delta buffer too short: got %d bytes, want %d", len(b), DeltaSize)
	}
	flags := b[3]
	if flags&^flagKnown != 0 {
		return Update{}, fmt.Errorf("record: invalid flag bits 0x%02x", flags)
	}
	dts := binary.BigEndian.Uint16(b[0:2])
	dseq := b[2]
	return Update{
		Ts:      refTs + uint64(dts),
		Seq:     refSeq + uint32(dseq),
		IsBid:   flags&flagIsBid != 0,
		IsTrade: flags&flagIsTrade != 0,
		Price:   math.Float32frombits(binary.BigEndian.Uint32(b[4:8])),
		Size:    math.Float32frombits(binary.BigEndian.Uint32(b[8:12])),
	}, nil
}

// CanonicalBytes returns the canonical byte form used for structural
// equality / deduplication: the raw 21-byte encoding. NaN payloads are not
// expected in inputs, so bit-exact float comparison via this byte form is
// sufficient.
func (u Update) CanonicalBytes() [RawSize]byte {
	return u.EncodeRaw()
}

// Symbol is an exchange_currency_asset identifier parsed from a book or file
// name. It is used only by external metadata tooling, never by the wire
// protocol or the folder index.
type Symbol struct {
	Exchange string
	Currency string
	Asset    string
}

// ParseSymbol splits a symbol string of the form "exchange_currency_asset"
// into its three parts. It returns an error if the string does not split
// into exactly three non-empty parts.
func ParseSymbol(s string) (Symbol, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Symbol{}, fmt.Errorf("record: symbol %q does not split into exchange_currency_asset", s)
	}
	return Symbol{Exchange: parts[0], Currency: parts[1], Asset: parts[2]}, nil
}
