package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ReadRequest(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 4})
	buf.WriteString("PING")

	r := NewReader(&buf)
	payload, err := r.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "PING", string(payload))
}

func TestReader_ReadRequest_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})

	r := NewReader(&buf)
	payload, err := r.ReadRequest()
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestReader_ReadRequest_TruncatedLength(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 0, 1})
	r := NewReader(buf)
	_, err := r.ReadRequest()
	assert.Error(t, err)
}

func TestWriter_WriteOK(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteOKString("PONG"))

	out := buf.Bytes()
	require.Len(t, out, 1+8+4)
	assert.Equal(t, byte(statusOK), out[0])
	assert.Equal(t, "PONG", string(out[9:]))
}

func TestWriter_WriteErr(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteErr(ErrNoDBNamed("missing")))

	out := buf.Bytes()
	assert.Equal(t, byte(statusErr), out[0])
	assert.Equal(t, "ERR: No db named `missing`", string(out[9:]))
}

func TestWriter_AutoFlushDisabled(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.SetAutoFlush(false)

	require.NoError(t, w.WriteOKString("a"))
	require.NoError(t, w.WriteOKString("b"))
	assert.Zero(t, buf.Len())

	require.NoError(t, w.Flush())
	assert.NotZero(t, buf.Len())
}
