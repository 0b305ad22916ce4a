package history

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampler_RecordsPerNameAndTotal(t *testing.T) {
	s := NewSampler(10)
	s.Sample("1000", map[string]uint64{"a": 3, "b": 5})

	snap := s.Snapshot()
	require.Len(t, snap, 3)

	byName := make(map[string]map[string]uint64, len(snap))
	for _, ns := range snap {
		byName[ns.Name] = ns.Samples
	}
	assert.Equal(t, map[string]uint64{"1000": 3}, byName["a"])
	assert.Equal(t, map[string]uint64{"1000": 5}, byName["b"])
	assert.Equal(t, map[string]uint64{"1000": 8}, byName[TotalSeriesName])
}

func TestSampler_TrimsToCapacity(t *testing.T) {
	s := NewSampler(2)
	s.Sample("1", map[string]uint64{"a": 1})
	s.Sample("2", map[string]uint64{"a": 2})
	s.Sample("3", map[string]uint64{"a": 3})

	snap := s.Snapshot()
	var aSamples map[string]uint64
	for _, ns := range snap {
		if ns.Name == "a" {
			aSamples = ns.Samples
		}
	}
	require.Len(t, aSamples, 2)
	assert.NotContains(t, aSamples, "1", "oldest sample should have been trimmed")
	assert.Contains(t, aSamples, "2")
	assert.Contains(t, aSamples, "3")
}

func TestSampler_SnapshotMarshalsToExpectedShape(t *testing.T) {
	s := NewSampler(10)
	s.Sample("1000", map[string]uint64{"a": 1})

	b, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var decoded []map[string]map[string]uint64
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Len(t, decoded, 2)
}
