// Package history implements the bounded per-book sampling ring used to
// answer PERF: every book (plus a synthetic "total") gets a capped series of
// (timestamp, count) samples, trimmed from the front exactly like the
// teacher's slow-command log trims its oldest entries.
package history

import (
	"encoding/json"
	"sort"
)

// TotalSeriesName is the synthetic series name tracking the sum across every
// book, alongside each book's own series.
const TotalSeriesName = "total"

type sample struct {
	ts    string
	count uint64
}

// series is one tracked name's bounded sample ring.
type series struct {
	capacity int
	samples  []sample
}

func (s *series) record(ts string, count uint64) {
	s.samples = append(s.samples, sample{ts: ts, count: count})
	if len(s.samples) > s.capacity {
		s.samples = s.samples[len(s.samples)-s.capacity:]
	}
}

// Sampler tracks a bounded history per name. It is driven by the periodic
// history tick handled in the broker's Run loop and is not safe for concurrent use,
// consistent with every other piece of broker-owned state.
type Sampler struct {
	capacity int
	series   map[string]*series
}

// NewSampler creates a Sampler retaining up to capacity samples per series.
func NewSampler(capacity int) *Sampler {
	return &Sampler{capacity: capacity, series: make(map[string]*series)}
}

func (s *Sampler) seriesFor(name string) *series {
	ser, ok := s.series[name]
	if !ok {
		ser = &series{capacity: s.capacity}
		s.series[name] = ser
	}
	return ser
}

// Sample records one data point per name in counts, plus the synthetic total
// series, all stamped with ts (typically the current unix time as a decimal
// string).
func (s *Sampler) Sample(ts string, counts map[string]uint64) {
	var total uint64
	for name, count := range counts {
		s.seriesFor(name).record(ts, count)
		total += count
	}
	s.seriesFor(TotalSeriesName).record(ts, total)
}

// NamedSeries is one tracked name's sampled history, keyed by timestamp
// string. It marshals to the single-key JSON object PERF expects:
// {"<name>": {"<ts>": <count>, ...}}.
type NamedSeries struct {
	Name    string
	Samples map[string]uint64
}

// MarshalJSON implements json.Marshaler.
func (n NamedSeries) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]map[string]uint64{n.Name: n.Samples})
}

// Snapshot returns every tracked series, ordered by name, ready to encode as
// the PERF JSON array.
func (s *Sampler) Snapshot() []NamedSeries {
	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]NamedSeries, 0, len(names))
	for _, name := range names {
		ser := s.series[name]
		samples := make(map[string]uint64, len(ser.samples))
		for _, smp := range ser.samples {
			samples[smp.ts] = smp.count
		}
		out = append(out, NamedSeries{Name: name, Samples: samples})
	}
	return out
}
