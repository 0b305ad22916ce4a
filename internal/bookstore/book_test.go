package bookstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtfdb/dtfd/internal/dtf"
	"github.com/dtfdb/dtfd/internal/record"
)

func TestBook_AddAccumulatesInMemory(t *testing.T) {
	dir := t.TempDir()
	b := newBook("sym", dir, false, 0, nil)

	require.NoError(t, b.Add(record.Update{Ts: 1, Seq: 1}))
	require.NoError(t, b.Add(record.Update{Ts: 2, Seq: 1}))

	assert.Equal(t, uint64(2), b.NominalCount())
	assert.Equal(t, 2, b.InMemoryCount())
	_, err := os.Stat(b.path())
	assert.True(t, os.IsNotExist(err), "flush should not have happened yet")
}

func TestBook_AutoflushOnInterval(t *testing.T) {
	dir := t.TempDir()
	b := newBook("sym", dir, true, 2, nil)

	require.NoError(t, b.Add(record.Update{Ts: 1, Seq: 1}))
	assert.Equal(t, 1, b.InMemoryCount())

	require.NoError(t, b.Add(record.Update{Ts: 2, Seq: 1}))
	assert.Equal(t, 0, b.InMemoryCount(), "buffer should be flushed at the interval boundary")
	assert.Equal(t, uint64(2), b.NominalCount())

	f, err := os.Open(b.path())
	require.NoError(t, err)
	defer f.Close()
	meta, err := dtf.ReadMeta(f)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), meta.Count)
}

func TestBook_FlushThenAppend(t *testing.T) {
	dir := t.TempDir()
	b := newBook("sym", dir, false, 0, nil)

	require.NoError(t, b.Add(record.Update{Ts: 1, Seq: 1}))
	require.NoError(t, b.Flush())
	require.NoError(t, b.Add(record.Update{Ts: 2, Seq: 1}))
	require.NoError(t, b.Flush())

	f, err := os.Open(b.path())
	require.NoError(t, err)
	defer f.Close()
	got, err := dtf.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, []record.Update{{Ts: 1, Seq: 1}, {Ts: 2, Seq: 1}}, got)
}

func TestBook_Clear(t *testing.T) {
	dir := t.TempDir()
	b := newBook("sym", dir, false, 0, nil)
	require.NoError(t, b.Add(record.Update{Ts: 1, Seq: 1}))
	require.NoError(t, b.Flush())
	require.NoError(t, b.Add(record.Update{Ts: 2, Seq: 1}))

	require.NoError(t, b.Clear())
	assert.Equal(t, 0, b.InMemoryCount())
	assert.False(t, b.InMemory())
	assert.Equal(t, uint64(1), b.NominalCount(), "reconciled from the durable header")
}

func TestBook_ClearWithNoFileYet(t *testing.T) {
	dir := t.TempDir()
	b := newBook("sym", dir, false, 0, nil)
	require.NoError(t, b.Add(record.Update{Ts: 1, Seq: 1}))

	require.NoError(t, b.Clear())
	assert.Equal(t, uint64(0), b.NominalCount())
}

func TestBook_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sym.dtf")
	ups := []record.Update{{Ts: 1, Seq: 1}, {Ts: 2, Seq: 1}, {Ts: 3, Seq: 1}}
	require.NoError(t, dtf.EncodeFile(path, "sym", ups))

	b := newBook("sym", dir, false, 0, nil)
	require.NoError(t, b.Load())
	assert.True(t, b.InMemory())
	assert.Equal(t, ups, b.Tail())
	assert.Equal(t, uint64(3), b.NominalCount())
}

func TestBook_LoadMissingFileIsNoop(t *testing.T) {
	b := newBook("sym", t.TempDir(), false, 0, nil)
	require.NoError(t, b.Load())
	assert.False(t, b.InMemory())
	assert.Equal(t, 0, b.InMemoryCount())
}

func TestBook_DiskSizeAndMemSize(t *testing.T) {
	dir := t.TempDir()
	b := newBook("sym", dir, false, 0, nil)

	assert.Zero(t, b.DiskSize(), "no file yet")
	assert.Zero(t, b.MemSize())

	require.NoError(t, b.Add(record.Update{Ts: 1, Seq: 1}))
	require.NoError(t, b.Add(record.Update{Ts: 2, Seq: 1}))
	assert.Equal(t, int64(2*record.RawSize), b.MemSize())

	require.NoError(t, b.Flush())
	fi, err := os.Stat(b.path())
	require.NoError(t, err)
	assert.Equal(t, fi.Size(), b.DiskSize())
	assert.Zero(t, b.MemSize(), "buffer cleared after flush")
}
