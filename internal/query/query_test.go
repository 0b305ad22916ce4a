package query

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtfdb/dtfd/internal/bookstore"
	"github.com/dtfdb/dtfd/internal/dtf"
	"github.com/dtfdb/dtfd/internal/record"
)

func mustBook(t *testing.T, s *bookstore.Store, name string) *bookstore.Book {
	t.Helper()
	require.NoError(t, s.Create(name))
	b, ok := s.Book(name)
	require.True(t, ok)
	return b
}

func TestExecute_AllInMemReturnsEverything(t *testing.T) {
	dir := t.TempDir()
	s := bookstore.New(dir, false, 0, nil)
	b := mustBook(t, s, "btc_usd")
	require.NoError(t, s.Insert("btc_usd", record.Update{Ts: 10, Seq: 1, Price: 1, Size: 1}))
	require.NoError(t, s.Insert("btc_usd", record.Update{Ts: 20, Seq: 1, Price: 2, Size: 2}))

	out, err := Execute(b, dir, Request{All: true, Format: FormatJSON})
	require.NoError(t, err)

	var got []jsonRecord
	require.NoError(t, json.Unmarshal(out, &got))
	require.Len(t, got, 2)
	assert.Equal(t, uint64(0), got[0].Ts)
	assert.Equal(t, uint64(0), got[1].Ts)
}

func TestExecute_ZeroCountWithoutAllErrors(t *testing.T) {
	dir := t.TempDir()
	s := bookstore.New(dir, false, 0, nil)
	b := mustBook(t, s, "btc_usd")

	_, err := Execute(b, dir, Request{Count: 0})
	require.Error(t, err)
}

func TestExecute_CountSatisfiedFromMemory(t *testing.T) {
	dir := t.TempDir()
	s := bookstore.New(dir, false, 0, nil)
	b := mustBook(t, s, "btc_usd")
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Insert("btc_usd", record.Update{Ts: uint64(i + 1), Seq: 1}))
	}

	out, err := Execute(b, dir, Request{Count: 3, Format: FormatCSV})
	require.NoError(t, err)
	lines := strings.Split(string(out), "\n")
	assert.Len(t, lines, 3)
}

func TestExecute_ExtendsFromDiskWhenMemoryInsufficient(t *testing.T) {
	dir := t.TempDir()
	s := bookstore.New(dir, false, 0, nil)
	b := mustBook(t, s, "btc_usd")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Insert("btc_usd", record.Update{Ts: uint64(i + 1), Seq: 1}))
	}
	require.NoError(t, b.Flush())
	for i := 3; i < 5; i++ {
		require.NoError(t, s.Insert("btc_usd", record.Update{Ts: uint64(i + 1), Seq: 1}))
	}

	out, err := Execute(b, dir, Request{Count: 5, HasRange: true, MinTs: 1, MaxTs: 5, Format: FormatJSON})
	require.NoError(t, err)
	var got []jsonRecord
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Len(t, got, 5)
}

func TestExecute_NoRangeDoesNotExtendFromDisk(t *testing.T) {
	dir := t.TempDir()
	s := bookstore.New(dir, false, 0, nil)
	b := mustBook(t, s, "btc_usd")
	require.NoError(t, s.Insert("btc_usd", record.Update{Ts: 1, Seq: 1}))
	require.NoError(t, b.Flush())
	require.NoError(t, s.Insert("btc_usd", record.Update{Ts: 2, Seq: 1}))

	_, err := Execute(b, dir, Request{Count: 2})
	require.Error(t, err, "GET <count> without a range must not consult the on-disk index")
}

func TestExecute_InsufficientRecordsErrors(t *testing.T) {
	dir := t.TempDir()
	s := bookstore.New(dir, false, 0, nil)
	b := mustBook(t, s, "btc_usd")
	require.NoError(t, s.Insert("btc_usd", record.Update{Ts: 1, Seq: 1}))

	_, err := Execute(b, dir, Request{Count: 10})
	require.Error(t, err)
}

func TestExecute_InMemSkipsDiskExtension(t *testing.T) {
	dir := t.TempDir()
	s := bookstore.New(dir, false, 0, nil)
	b := mustBook(t, s, "btc_usd")
	require.NoError(t, s.Insert("btc_usd", record.Update{Ts: 1, Seq: 1}))
	require.NoError(t, b.Flush())
	require.NoError(t, s.Insert("btc_usd", record.Update{Ts: 2, Seq: 1}))

	out, err := Execute(b, dir, Request{Count: 10, InMem: true, Format: FormatJSON})
	require.NoError(t, err)
	var got []jsonRecord
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Len(t, got, 1, "IN MEM must not extend from disk even if short")
}

func TestExecute_RangeFiltersInMemoryInclusive(t *testing.T) {
	dir := t.TempDir()
	s := bookstore.New(dir, false, 0, nil)
	b := mustBook(t, s, "btc_usd")
	require.NoError(t, s.Insert("btc_usd", record.Update{Ts: 10, Seq: 1}))
	require.NoError(t, s.Insert("btc_usd", record.Update{Ts: 20, Seq: 1}))
	require.NoError(t, s.Insert("btc_usd", record.Update{Ts: 30, Seq: 1}))

	out, err := Execute(b, dir, Request{All: true, HasRange: true, MinTs: 10, MaxTs: 30, Format: FormatJSON})
	require.NoError(t, err)
	var got []jsonRecord
	require.NoError(t, json.Unmarshal(out, &got))
	require.Len(t, got, 3, "range bounds are inclusive on both ends")
}

func TestExecute_FormatDTFRendersBatchStream(t *testing.T) {
	dir := t.TempDir()
	s := bookstore.New(dir, false, 0, nil)
	b := mustBook(t, s, "btc_usd")
	require.NoError(t, s.Insert("btc_usd", record.Update{Ts: 1000, Seq: 1, Price: 1.5, Size: 2.5}))

	out, err := Execute(b, dir, Request{All: true, Format: FormatDTF})
	require.NoError(t, err)

	got, err := dtf.DecodeBatchStream(strings.NewReader(string(out)))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(1000), got[0].Ts)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatDTF, f)

	f, err = ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	require.Error(t, err)
}
