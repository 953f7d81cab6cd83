package core

import (
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/coverage-analyzer/model"
)

func access(sat, inst string, startH float64) model.AccessSample {
	return model.AccessSample{
		SatelliteID:  sat,
		InstrumentID: inst,
		Start:        testStart.Add(time.Duration(startH * float64(time.Hour))),
		Duration:     5 * time.Minute,
	}
}

func TestComputeCoverageRevisits(t *testing.T) {
	records := []model.AccessRecord{
		{TargetID: "a", Samples: []model.AccessSample{access("s1", "c", 7), access("s1", "c", 1), access("s2", "c", 3)}},
		{TargetID: "b", Samples: []model.AccessSample{access("s1", "c", 2)}},
		{TargetID: "c", Samples: []model.AccessSample{access("s1", "c", 0), access("s1", "c", 12)}},
	}
	cov := ComputeCoverage([]string{"a", "b", "c", "d"}, records, model.CoverageOptions{})

	if len(cov.Records) != 3 {
		t.Fatalf("got %d records, want 3", len(cov.Records))
	}
	a := cov.Records[0]
	if a.NumberSamples != 3 || a.Samples[0].Revisit != nil {
		t.Fatalf("record a: %+v", a)
	}
	wantRevisits := []time.Duration{2 * time.Hour, 4 * time.Hour}
	for i, w := range wantRevisits {
		if got := a.Samples[i+1].Revisit; got == nil || *got != w {
			t.Fatalf("revisit %d = %v, want %v", i+1, got, w)
		}
	}
	if a.MeanRevisit == nil || *a.MeanRevisit != 3*time.Hour {
		t.Fatalf("mean revisit a = %v, want 3h", a.MeanRevisit)
	}
	if b := cov.Records[1]; b.MeanRevisit != nil || b.NumberSamples != 1 {
		t.Fatalf("single-sample target should have no mean revisit: %+v", b)
	}

	// Harmonic mean over a (3h) and c (12h) only: 2 / (1/3 + 1/12) = 4.8h.
	if cov.HarmonicMeanRevisit == nil {
		t.Fatalf("harmonic mean revisit missing")
	}
	if d := *cov.HarmonicMeanRevisit - 288*time.Minute; d < -time.Millisecond || d > time.Millisecond {
		t.Fatalf("harmonic mean revisit = %v, want 4h48m", *cov.HarmonicMeanRevisit)
	}
	am := (3*time.Hour + 12*time.Hour) / 2
	if *cov.HarmonicMeanRevisit > am {
		t.Fatalf("harmonic mean %v exceeds arithmetic mean %v", *cov.HarmonicMeanRevisit, am)
	}
	if cov.CoverageFraction != 0.75 {
		t.Fatalf("coverage fraction = %v, want 0.75", cov.CoverageFraction)
	}
}

func TestComputeCoverageDoesNotModifyInput(t *testing.T) {
	samples := []model.AccessSample{access("s1", "c", 5), access("s1", "c", 1)}
	records := []model.AccessRecord{{TargetID: "a", Samples: samples}}
	first := ComputeCoverage([]string{"a"}, records, model.CoverageOptions{})
	second := ComputeCoverage([]string{"a"}, records, model.CoverageOptions{})

	if !samples[0].Start.Equal(testStart.Add(5 * time.Hour)) {
		t.Fatalf("input samples were reordered")
	}
	if *first.Records[0].MeanRevisit != *second.Records[0].MeanRevisit ||
		*first.HarmonicMeanRevisit != *second.HarmonicMeanRevisit ||
		first.CoverageFraction != second.CoverageFraction {
		t.Fatalf("coverage is not repeatable: %+v vs %+v", first, second)
	}
}

func TestComputeCoverageOmitFilters(t *testing.T) {
	records := []model.AccessRecord{
		{TargetID: "a", Samples: []model.AccessSample{access("s1", "cam", 1), access("s2", "cam", 2), access("s1", "ir", 4)}},
		{TargetID: "b", Samples: []model.AccessSample{access("s2", "cam", 1)}},
	}
	cov := ComputeCoverage([]string{"a", "b"}, records, model.CoverageOptions{OmitSatelliteIDs: []string{"s2"}})
	if cov.Records[0].NumberSamples != 2 || *cov.Records[0].MeanRevisit != 3*time.Hour {
		t.Fatalf("record a after omitting s2: %+v", cov.Records[0])
	}
	if cov.Records[1].NumberSamples != 0 || cov.CoverageFraction != 0.5 {
		t.Fatalf("target b should be uncovered: %+v fraction %v", cov.Records[1], cov.CoverageFraction)
	}

	cov = ComputeCoverage([]string{"a", "b"}, records, model.CoverageOptions{OmitInstrumentIDs: []string{"cam"}})
	if cov.Records[0].NumberSamples != 1 || cov.HarmonicMeanRevisit != nil || cov.CoverageFraction != 0.5 {
		t.Fatalf("omitting cam: %+v", cov)
	}
}

func TestComputeCoverageEmptyAndSimultaneous(t *testing.T) {
	cov := ComputeCoverage(nil, nil, model.CoverageOptions{})
	if cov.HarmonicMeanRevisit != nil || cov.CoverageFraction != 0 || len(cov.Records) != 0 {
		t.Fatalf("empty coverage: %+v", cov)
	}

	// Two sensors starting together give a zero revisit.
	records := []model.AccessRecord{{TargetID: "a", Samples: []model.AccessSample{access("s2", "c", 1), access("s1", "c", 1)}}}
	cov = ComputeCoverage([]string{"a"}, records, model.CoverageOptions{})
	rec := cov.Records[0]
	if rec.Samples[0].SatelliteID != "s1" {
		t.Fatalf("ties should break by satellite id, got %s first", rec.Samples[0].SatelliteID)
	}
	if *rec.MeanRevisit != 0 || *cov.HarmonicMeanRevisit != 0 {
		t.Fatalf("simultaneous accesses: mean %v harmonic %v", *rec.MeanRevisit, *cov.HarmonicMeanRevisit)
	}
	if math.IsNaN(cov.CoverageFraction) || cov.CoverageFraction != 1 {
		t.Fatalf("coverage fraction %v", cov.CoverageFraction)
	}
}

func TestComputeCoverageMergesRecordsByTarget(t *testing.T) {
	records := []model.AccessRecord{
		{TargetID: "a", Samples: []model.AccessSample{access("s1", "c", 0), access("s1", "c", 10)}},
		{TargetID: "a", Samples: []model.AccessSample{access("s2", "c", 5)}},
	}
	cov := ComputeCoverage([]string{"a"}, records, model.CoverageOptions{})
	if len(cov.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(cov.Records))
	}
	rec := cov.Records[0]
	if rec.NumberSamples != 3 || rec.Samples[1].SatelliteID != "s2" {
		t.Fatalf("merged record: %+v", rec)
	}
	if rec.MeanRevisit == nil || *rec.MeanRevisit != 5*time.Hour {
		t.Fatalf("mean revisit = %v, want 5h", rec.MeanRevisit)
	}
	if cov.HarmonicMeanRevisit == nil || *cov.HarmonicMeanRevisit != 5*time.Hour {
		t.Fatalf("harmonic mean revisit = %v, want 5h", cov.HarmonicMeanRevisit)
	}
	if len(records[0].Samples) != 2 || len(records[1].Samples) != 1 {
		t.Fatalf("input records were modified")
	}
}

func TestComputeCoverageIgnoresUnknownTargets(t *testing.T) {
	records := []model.AccessRecord{
		{TargetID: "zzz", Samples: []model.AccessSample{access("s1", "c", 0), access("s1", "c", 1)}},
		{TargetID: "a", Samples: []model.AccessSample{access("s1", "c", 0), access("s1", "c", 10)}},
	}
	cov := ComputeCoverage([]string{"a"}, records, model.CoverageOptions{})
	if len(cov.Records) != 1 || cov.Records[0].TargetID != "a" {
		t.Fatalf("records: %+v", cov.Records)
	}
	if cov.HarmonicMeanRevisit == nil || *cov.HarmonicMeanRevisit != 10*time.Hour {
		t.Fatalf("harmonic mean revisit = %v, want 10h", cov.HarmonicMeanRevisit)
	}
	if cov.CoverageFraction != 1 {
		t.Fatalf("coverage fraction = %v, want 1", cov.CoverageFraction)
	}
}

func TestComputeCoverageTargetWithoutRecordIsUncovered(t *testing.T) {
	// Access failed for every entity touching b, so it has no record.
	records := []model.AccessRecord{
		{TargetID: "a", Samples: []model.AccessSample{access("s1", "c", 0), access("s1", "c", 6)}},
	}
	cov := ComputeCoverage([]string{"a", "b"}, records, model.CoverageOptions{})
	for _, rec := range cov.Records {
		if rec.TargetID == "b" {
			t.Fatalf("target without access should have no coverage record: %+v", rec)
		}
	}
	if len(cov.Records) != 1 || cov.CoverageFraction != 0.5 {
		t.Fatalf("records %d fraction %v, want 1 and 0.5", len(cov.Records), cov.CoverageFraction)
	}
	if *cov.HarmonicMeanRevisit != 6*time.Hour {
		t.Fatalf("harmonic mean revisit = %v, want 6h", *cov.HarmonicMeanRevisit)
	}
}
