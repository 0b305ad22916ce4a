// Package wire implements the length-prefixed request/response framing and
// the textual command grammar spoken over a dtfd connection.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	defaultBufSize = 64 * 1024
	// maxRequestLength bounds a single request payload; a client asking for
	// more than this is almost certainly desynchronized, not legitimate.
	maxRequestLength = 64 * 1024 * 1024

	statusOK  byte = 0x01
	statusErr byte = 0x00
)

// Reader reads framed requests: a 4-byte big-endian length followed by that
// many bytes of payload (text command or binary raw insert).
type Reader struct {
	rd *bufio.Reader
}

// NewReader wraps r with a buffered frame Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{rd: bufio.NewReaderSize(r, defaultBufSize)}
}

// ReadRequest reads and returns one request payload.
func (r *Reader) ReadRequest() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.rd, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxRequestLength {
		return nil, fmt.Errorf("wire: request length %d exceeds max %d", n, maxRequestLength)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.rd, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Writer writes framed responses: a 1-byte status (0x01 ok, 0x00 err)
// followed by an 8-byte big-endian length and that many bytes of body.
//
// By default every Write* call flushes immediately. Call SetAutoFlush(false)
// before writing a burst of subscription fan-out messages, then Flush()
// once, to amortise syscalls across many responses.
type Writer struct {
	wr        *bufio.Writer
	autoFlush bool
}

// NewWriter wraps w with a buffered frame Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{wr: bufio.NewWriterSize(w, defaultBufSize), autoFlush: true}
}

// SetAutoFlush controls whether each Write* call flushes automatically.
func (w *Writer) SetAutoFlush(on bool) { w.autoFlush = on }

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() error { return w.wr.Flush() }

func (w *Writer) flush() error {
	if w.autoFlush {
		return w.wr.Flush()
	}
	return nil
}

// WriteOK writes a success response carrying body.
func (w *Writer) WriteOK(body []byte) error { return w.writeResponse(statusOK, body) }

// WriteOKString is WriteOK for a text body.
func (w *Writer) WriteOKString(body string) error { return w.WriteOK([]byte(body)) }

// WriteErr writes an error response. msg is wrapped in the wire's "ERR: "
// convention (spec §4.4); callers pass the bare diagnostic.
func (w *Writer) WriteErr(msg string) error {
	return w.writeResponse(statusErr, []byte(ErrPrefix+msg))
}

func (w *Writer) writeResponse(status byte, body []byte) error {
	if err := w.wr.WriteByte(status); err != nil {
		return err
	}
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(body)))
	if _, err := w.wr.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.wr.Write(body); err != nil {
		return err
	}
	return w.flush()
}
