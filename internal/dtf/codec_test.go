package dtf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtfdb/dtfd/internal/record"
)

func synthetic(n int) []record.Update {
	ups := make([]record.Update, n)
	for i := 0; i < n; i++ {
		ups[i] = record.Update{Ts: uint64((i + 1) * 1000), Seq: uint32(i + 1), Price: 1, Size: 1}
	}
	return ups
}

func tempDTF(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "*.dtf")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestEncodeDecode_SingleRecordRoundTrip(t *testing.T) {
	// S1: single record round trip.
	u := record.Update{Ts: 100, Seq: 113, IsTrade: false, IsBid: false, Price: 5100.01, Size: 1.14564564645}
	f := tempDTF(t)
	require.NoError(t, Encode(f, "NEO_BTC", []record.Update{u}))

	meta, err := ReadMeta(f)
	require.NoError(t, err)
	assert.Equal(t, Meta{Symbol: "NEO_BTC", Count: 1, MaxTs: 100}, meta)

	got, err := Decode(f)
	require.NoError(t, err)
	assert.Equal(t, []record.Update{u}, got)
}

func TestEncode_RejectsEmptyInput(t *testing.T) {
	f := tempDTF(t)
	err := Encode(f, "X", nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestRange_SyntheticFile(t *testing.T) {
	// S2: range scan over 49 synthetic records, ts=i*1000, seq=i for i in [1,49].
	ups := synthetic(49)
	f := tempDTF(t)
	require.NoError(t, Encode(f, "SYN", ups))

	var got []record.Update
	err := Range(f, 10000, 20000, func(u record.Update) error {
		got = append(got, u)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 11)
	assert.Equal(t, uint64(10000), got[0].Ts)
	assert.Equal(t, uint64(20000), got[len(got)-1].Ts)
	for _, u := range got {
		assert.GreaterOrEqual(t, u.Ts, uint64(10000))
		assert.LessOrEqual(t, u.Ts, uint64(20000))
	}
}

func TestRange_ReversedQueryReturnsNothing(t *testing.T) {
	ups := synthetic(10)
	f := tempDTF(t)
	require.NoError(t, Encode(f, "SYN", ups))

	var got []record.Update
	err := Range(f, 9000, 1000, func(u record.Update) error {
		got = append(got, u)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRange_MatchesFullFilterPredicate(t *testing.T) {
	ups := synthetic(200)
	f := tempDTF(t)
	require.NoError(t, Encode(f, "SYN", ups))

	var got []record.Update
	require.NoError(t, Range(f, 50000, 150000, func(u record.Update) error {
		got = append(got, u)
		return nil
	}))

	var want []record.Update
	for _, u := range ups {
		if u.Ts >= 50000 && u.Ts <= 150000 {
			want = append(want, u)
		}
	}
	assert.Equal(t, want, got)
}

func TestRange_TerminatesWhenWindowEndsBeforeFirstBatch(t *testing.T) {
	ups := synthetic(5)
	f := tempDTF(t)
	require.NoError(t, Encode(f, "SYN", ups))

	var got []record.Update
	require.NoError(t, Range(f, 0, 500, func(u record.Update) error {
		got = append(got, u)
		return nil
	}))
	assert.Empty(t, got)
}

func TestAppend_FiltersAndReorders(t *testing.T) {
	// S3: append-and-reorder.
	dir := t.TempDir()
	path := filepath.Join(dir, "test.dtf")

	initial := []record.Update{
		{Ts: 100, Seq: 113, Price: 1, Size: 1},
		{Ts: 101, Seq: 113, Price: 1, Size: 1},
		{Ts: 1_000_000, Seq: 113, Price: 1, Size: 1},
	}
	require.NoError(t, EncodeFile(path, "TEST", initial))

	toAppend := []record.Update{
		{Ts: 20_000_000, Seq: 113, Price: 1, Size: 1},
		{Ts: 20_000_001, Seq: 113, Price: 1, Size: 1},
		{Ts: 2, Seq: 113, Price: 1, Size: 1},
	}
	require.NoError(t, Append(path, toAppend))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	meta, err := ReadMeta(f)
	require.NoError(t, err)
	assert.Equal(t, uint64(20_000_001), meta.MaxTs)
	assert.Equal(t, uint64(5), meta.Count)

	got, err := Decode(f)
	require.NoError(t, err)
	want := []record.Update{
		initial[0], initial[1], initial[2],
		toAppend[0], toAppend[1],
	}
	assert.Equal(t, want, got)
}

func TestAppend_NoOpWhenNothingSurvivesFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.dtf")
	initial := synthetic(5)
	require.NoError(t, EncodeFile(path, "TEST", initial))

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, Append(path, []record.Update{{Ts: 1, Seq: 1}, {Ts: 2, Seq: 1}}))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAppend_PanicsOnUnsortedSurvivors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.dtf")
	require.NoError(t, EncodeFile(path, "TEST", synthetic(3)))

	assert.Panics(t, func() {
		Append(path, []record.Update{{Ts: 10000, Seq: 1}, {Ts: 9000, Seq: 1}})
	})
}

func TestAppend_OntoEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.dtf")

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, writeHeader(f, "TEST", 0, 0))
	require.NoError(t, f.Close())

	require.NoError(t, Append(path, synthetic(3)))

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	got, err := Decode(f)
	require.NoError(t, err)
	assert.Equal(t, synthetic(3), got)
}
