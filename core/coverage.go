package core

import (
	"time"

	"github.com/signalsfoundry/coverage-analyzer/model"
)

// ComputeCoverage derives revisit statistics per target and the corpus-wide
// harmonic mean revisit and coverage fraction over targetIDs. Records sharing
// a target id are merged into one sample sequence. Records for ids outside
// targetIDs are ignored, and targets without a record count as uncovered.
// Records are returned in targetIDs order. Inputs are not modified.
func ComputeCoverage(targetIDs []string, records []model.AccessRecord, opts model.CoverageOptions) model.CoverageResponse {
	omitSat := toSet(opts.OmitSatelliteIDs)
	omitInst := toSet(opts.OmitInstrumentIDs)

	known := toSet(targetIDs)
	merged := make(map[string][]model.AccessSample, len(known))
	for _, rec := range records {
		if !known[rec.TargetID] {
			continue
		}
		samples, ok := merged[rec.TargetID]
		if !ok {
			samples = []model.AccessSample{}
		}
		for _, s := range rec.Samples {
			if omitSat[s.SatelliteID] || omitInst[s.InstrumentID] {
				continue
			}
			samples = append(samples, s)
		}
		merged[rec.TargetID] = samples
	}

	out := model.CoverageResponse{Records: make([]model.CoverageRecord, 0, len(merged))}
	var (
		covered    int
		qualifying int
		invSum     float64
		zeroMean   bool
	)
	for _, id := range targetIDs {
		samples, ok := merged[id]
		if !ok {
			continue
		}
		delete(merged, id)
		SortAccessSamples(samples)

		cr := coverageRecord(id, samples)
		out.Records = append(out.Records, cr)

		if len(samples) > 0 {
			covered++
		}
		if cr.MeanRevisit != nil {
			qualifying++
			if *cr.MeanRevisit <= 0 {
				zeroMean = true
			} else {
				invSum += 1 / cr.MeanRevisit.Seconds()
			}
		}
	}

	if qualifying > 0 {
		// A zero mean revisit (simultaneous accesses) drives the harmonic
		// mean to zero.
		var hm time.Duration
		if !zeroMean {
			hm = time.Duration(float64(qualifying) / invSum * float64(time.Second))
		}
		out.HarmonicMeanRevisit = &hm
	}
	if len(known) > 0 {
		out.CoverageFraction = float64(covered) / float64(len(known))
	}
	return out
}

func coverageRecord(targetID string, samples []model.AccessSample) model.CoverageRecord {
	cr := model.CoverageRecord{
		TargetID:      targetID,
		Samples:       make([]model.CoverageSample, len(samples)),
		NumberSamples: len(samples),
	}
	var total time.Duration
	for i, s := range samples {
		cr.Samples[i].AccessSample = s
		if i == 0 {
			continue
		}
		r := s.Start.Sub(samples[i-1].Start)
		cr.Samples[i].Revisit = &r
		total += r
	}
	if len(samples) >= 2 {
		mean := total / time.Duration(len(samples)-1)
		cr.MeanRevisit = &mean
	}
	return cr
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
