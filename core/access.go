package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/coverage-analyzer/model"
	"github.com/signalsfoundry/coverage-analyzer/timectrl"
)

// CollapseAccess turns a visibility stream aligned with grid into access
// samples. A run of true instants from i to j becomes one sample starting at
// instant i with duration (t_j - t_i) + grid.Step. Samples shorter than
// minAccess are dropped.
func CollapseAccess(visible []bool, grid timectrl.TimeGrid, satelliteID, instrumentID string, minAccess time.Duration) []model.AccessSample {
	var (
		out   []model.AccessSample
		open  bool
		first int
	)
	closeAt := func(last int) {
		start := grid.At(first)
		d := grid.At(last).Sub(start) + grid.Step
		if d < minAccess {
			return
		}
		out = append(out, model.AccessSample{
			SatelliteID:  satelliteID,
			InstrumentID: instrumentID,
			Start:        start,
			Duration:     d,
		})
	}

	for i, v := range visible {
		switch {
		case v && !open:
			open, first = true, i
		case !v && open:
			open = false
			closeAt(i - 1)
		}
	}
	if open {
		closeAt(len(visible) - 1)
	}
	return out
}

// TripleAccess is the access result of one (satellite, instrument, target)
// triple.
type TripleAccess struct {
	TargetID string
	Samples  []model.AccessSample
}

// MergeAccessRecords groups triple results by target. Records follow the
// order of targetIDs; a target with no triple result gets no record.
// Samples are never merged across sensors.
func MergeAccessRecords(targetIDs []string, triples []TripleAccess) []model.AccessRecord {
	byTarget := make(map[string][]model.AccessSample, len(targetIDs))
	seen := make(map[string]bool, len(targetIDs))
	for _, tr := range triples {
		seen[tr.TargetID] = true
		byTarget[tr.TargetID] = append(byTarget[tr.TargetID], tr.Samples...)
	}

	out := make([]model.AccessRecord, 0, len(seen))
	for _, id := range targetIDs {
		if !seen[id] {
			continue
		}
		samples := byTarget[id]
		if samples == nil {
			samples = []model.AccessSample{}
		}
		SortAccessSamples(samples)
		out = append(out, model.AccessRecord{TargetID: id, Samples: samples})
		delete(seen, id)
	}
	return out
}

// SortAccessSamples orders samples by start time, then satellite id, then
// instrument id. The sort is stable.
func SortAccessSamples(s []model.AccessSample) {
	sort.SliceStable(s, func(i, j int) bool {
		a, b := s[i], s[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.SatelliteID != b.SatelliteID {
			return a.SatelliteID < b.SatelliteID
		}
		return a.InstrumentID < b.InstrumentID
	})
}

// TripleAccessSamples evaluates one (satellite, instrument, target) triple
// over the whole ephemeris, which must be aligned with grid, and collapses
// the result.
func (e *Evaluator) TripleAccessSamples(
	eph []model.EphemerisSample,
	grid timectrl.TimeGrid,
	satelliteID string,
	in model.Instrument,
	target model.Target,
	c model.Constraints,
) ([]model.AccessSample, error) {
	if len(eph) != grid.Len() {
		return nil, fmt.Errorf("ephemeris has %d samples, grid has %d", len(eph), grid.Len())
	}
	visible := make([]bool, len(eph))
	for i, s := range eph {
		v, err := e.Evaluate(s, target, in, c)
		if err != nil {
			return nil, fmt.Errorf("at %s: %w", s.Time.Format(time.RFC3339), err)
		}
		visible[i] = v.Visible
	}
	return CollapseAccess(visible, grid, satelliteID, in.ID, in.MinAccessTime.Std()), nil
}
