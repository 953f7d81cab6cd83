package analysis

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/coverage-analyzer/core"
	"github.com/signalsfoundry/coverage-analyzer/internal/observability"
	"github.com/signalsfoundry/coverage-analyzer/model"
	"github.com/signalsfoundry/coverage-analyzer/timectrl"
)

var start = time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)

// twoPassRequest builds an equatorial satellite with a 14 hour synodic
// period over an equatorial target; passes are centred at 3h and 17h.
func twoPassRequest() Request {
	synodic := 14 * time.Hour
	omegaRel := 2 * math.Pi / synodic.Seconds()
	n := omegaRel + core.Earth.RotationRate
	a := math.Cbrt(core.Earth.Mu / (n * n))

	u := math.Mod(core.GMST(start)-omegaRel*(3*time.Hour).Seconds(), 2*math.Pi)
	if u < 0 {
		u += 2 * math.Pi
	}
	return Request{
		Satellites: []model.Satellite{{
			ID:    "eq-1",
			Orbit: model.CircularOrbit{Altitude: a - core.Earth.Radius, TrueAnomaly: u * 180 / math.Pi},
			Instruments: []model.Instrument{
				{ID: "cam", FieldOfView: model.CircularField(30)},
			},
		}},
		Targets:     []model.Target{{ID: "equator"}, {ID: "pole", Latitude: 90}},
		Start:       start,
		Duration:    model.Duration(24 * time.Hour),
		Step:        model.Duration(10 * time.Second),
		DataMetrics: true,
	}
}

func walkerRequest() Request {
	return Request{
		Constellations: []model.WalkerConstellation{{
			ID:               "wd",
			Configuration:    model.WalkerDelta,
			Orbit:            model.OrbitSpec{State: model.CircularOrbit{Altitude: 700e3, Inclination: 60}},
			Instruments:      []model.Instrument{{ID: "cam", FieldOfView: model.CircularField(60)}, {ID: "wide", FieldOfView: model.RectangularField(40, 90)}},
			NumberSatellites: 6,
			NumberPlanes:     3,
			RelativeSpacing:  1,
		}},
		Targets: []model.Target{
			{ID: "rome", Latitude: 41.9, Longitude: 12.5},
			{ID: "quito", Latitude: -0.2, Longitude: -78.5},
			{ID: "perth", Latitude: -31.9, Longitude: 115.9},
			{ID: "oslo", Latitude: 59.9, Longitude: 10.8},
		},
		Start:       start,
		Duration:    model.Duration(6 * time.Hour),
		Step:        model.Duration(30 * time.Second),
		DataMetrics: true,
	}
}

func TestRunTwoPassScenario(t *testing.T) {
	report, err := NewEngine(WithWorkers(4)).Run(context.Background(), twoPassRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Access) != 2 {
		t.Fatalf("got %d access records, want 2", len(report.Access))
	}
	eq := report.Access[0]
	if eq.TargetID != "equator" || len(eq.Samples) != 2 {
		t.Fatalf("equator record: %+v", eq)
	}
	if n := len(report.Access[1].Samples); n != 0 {
		t.Fatalf("an equatorial orbit never sees the pole, got %d samples", n)
	}

	rec := report.Coverage.Records[0]
	if rec.Samples[1].Revisit == nil {
		t.Fatalf("second sample has no revisit")
	}
	if d := math.Abs(rec.Samples[1].Revisit.Seconds() - (14 * time.Hour).Seconds()); d > 60 {
		t.Fatalf("revisit %v, want about 14h", *rec.Samples[1].Revisit)
	}
	if rec.MeanRevisit == nil || *rec.MeanRevisit != *rec.Samples[1].Revisit {
		t.Fatalf("mean revisit %v, want %v", rec.MeanRevisit, *rec.Samples[1].Revisit)
	}
	if report.Coverage.CoverageFraction != 0.5 {
		t.Fatalf("coverage fraction %v, want 0.5", report.Coverage.CoverageFraction)
	}
	hm := report.Coverage.HarmonicMeanRevisit
	if hm == nil || math.Abs(hm.Seconds()-rec.MeanRevisit.Seconds()) > 1e-6 {
		t.Fatalf("harmonic mean revisit %v, want %v", hm, *rec.MeanRevisit)
	}

	if len(report.DataMetrics) != 2 {
		t.Fatalf("got %d data metrics records, want 2", len(report.DataMetrics))
	}
	for i, s := range report.DataMetrics[0].Samples {
		if len(s.Metrics) == 0 {
			t.Fatalf("sample %d has no metrics", i)
		}
		for _, m := range s.Metrics {
			if math.Abs(m.LookAngle) > 15.0+1e-6 {
				t.Fatalf("sample %d: look angle %.3f outside the 15 deg half cone", i, m.LookAngle)
			}
			if m.Time.Before(s.Start) {
				t.Fatalf("sample %d: metric at %v precedes access start %v", i, m.Time, s.Start)
			}
		}
	}
	if len(report.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", report.Failures)
	}
	if report.RunID == "" {
		t.Fatalf("run id not set")
	}
	if report.Frame != model.FrameITRS || !report.End.Equal(start.Add(24*time.Hour)) {
		t.Fatalf("frame %s end %v", report.Frame, report.End)
	}
}

func TestRunIsIndependentOfWorkerCount(t *testing.T) {
	req := walkerRequest()
	serial, err := NewEngine(WithWorkers(1)).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("serial Run: %v", err)
	}
	parallel, err := NewEngine(WithWorkers(16)).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("parallel Run: %v", err)
	}

	serial.RunID, parallel.RunID = "", ""
	if !reflect.DeepEqual(serial, parallel) {
		t.Fatalf("reports differ between 1 and 16 workers")
	}

	total := 0
	for _, rec := range serial.Access {
		total += len(rec.Samples)
		for i := 1; i < len(rec.Samples); i++ {
			if rec.Samples[i].Start.Before(rec.Samples[i-1].Start) {
				t.Fatalf("samples of %s out of order at %d", rec.TargetID, i)
			}
		}
	}
	if total == 0 {
		t.Fatalf("a 6 satellite constellation should see something in 6 hours")
	}
	if len(serial.Access) != len(req.Targets) {
		t.Fatalf("got %d access records, want %d", len(serial.Access), len(req.Targets))
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := NewEngine().Run(ctx, walkerRequest())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Access) != 0 || report.RunID != "" {
		t.Fatalf("cancelled run returned a report: %+v", report)
	}
}

func TestRunRejectsInvalidInput(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewAnalysisCollector(reg)
	if err != nil {
		t.Fatalf("NewAnalysisCollector: %v", err)
	}
	eng := NewEngine(WithMetrics(collector))

	cases := []struct {
		name   string
		mutate func(*Request)
		target error
	}{
		{"frame", func(r *Request) { r.Frame = "GCRF" }, ErrInvalidRequest},
		{"propagator", func(r *Request) { r.Propagator = "rk45" }, ErrInvalidRequest},
		{"grid", func(r *Request) { r.Duration = model.Duration(-time.Hour) }, timectrl.ErrInvalidTimeGrid},
		{"oversized grid", func(r *Request) {
			r.Duration = model.Duration(2000000 * time.Hour)
			r.Step = model.Duration(time.Nanosecond)
		}, timectrl.ErrInvalidTimeGrid},
		{"duplicate target", func(r *Request) { r.Targets = append(r.Targets, r.Targets[0]) }, model.ErrInvalidTarget},
		{"bad target", func(r *Request) { r.Targets[0].Latitude = 120 }, model.ErrInvalidTarget},
		{"duplicate satellite", func(r *Request) { r.Satellites = append(r.Satellites, r.Satellites[0]) }, model.ErrInvalidSatellite},
		{"bad orbit", func(r *Request) { r.Satellites[0].Orbit = model.CircularOrbit{Altitude: 500e3, Inclination: 200} }, model.ErrInvalidOrbitState},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := twoPassRequest()
			tc.mutate(&req)
			_, err := eng.Run(context.Background(), req)
			if !errors.Is(err, tc.target) {
				t.Fatalf("expected %v, got %v", tc.target, err)
			}
			if !IsInvalid(err) {
				t.Fatalf("IsInvalid(%v) = false", err)
			}
		})
	}
	if got := testutil.ToFloat64(collector.Runs.WithLabelValues("analyze", observability.OutcomeInvalid)); got != float64(len(cases)) {
		t.Fatalf("invalid runs counted %v, want %d", got, len(cases))
	}
}

func TestComputeAccessReportsMissingEphemeris(t *testing.T) {
	req := walkerRequest()
	sats, err := req.Fleet()
	if err != nil {
		t.Fatalf("Fleet: %v", err)
	}
	grid, err := req.Grid(time.Minute)
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}

	eng := NewEngine(WithWorkers(3))
	set, failures, err := eng.Propagate(context.Background(), sats, grid)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if len(failures) != 0 || len(set) != 6 {
		t.Fatalf("got %d ephemerides and failures %+v", len(set), failures)
	}
	for id, eph := range set {
		if len(eph) != grid.Len() {
			t.Fatalf("%s: %d samples, want %d", id, len(eph), grid.Len())
		}
	}

	delete(set, sats[0].ID)
	set[sats[1].ID] = set[sats[1].ID][:10]
	records, failures, err := eng.ComputeAccess(context.Background(), set, sats, req.Targets, model.Constraints{}, grid)
	if err != nil {
		t.Fatalf("ComputeAccess: %v", err)
	}
	if len(records) != len(req.Targets) {
		t.Fatalf("got %d records, want %d", len(records), len(req.Targets))
	}

	// One failure for the missing satellite, one per (instrument, target)
	// of the truncated one.
	if want := 1 + 2*len(req.Targets); len(failures) != want {
		t.Fatalf("got %d failures, want %d", len(failures), want)
	}
	if failures[0].SatelliteID != sats[0].ID || failures[0].TargetID != "" {
		t.Fatalf("missing ephemeris failure: %+v", failures[0])
	}
	for _, f := range failures[1:] {
		if f.Stage != model.StageAccess || f.SatelliteID != sats[1].ID || f.TargetID == "" {
			t.Fatalf("truncated ephemeris failure: %+v", f)
		}
	}
}

func TestCoverageOmitsTargetsWhoseEntitiesAllFailed(t *testing.T) {
	req := twoPassRequest()
	grid, err := req.Grid(0)
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	eng := NewEngine(WithWorkers(2))

	records, failures, err := eng.ComputeAccess(context.Background(), EphemerisSet{}, req.Satellites, req.Targets, model.Constraints{}, grid)
	if err != nil {
		t.Fatalf("ComputeAccess: %v", err)
	}
	if len(records) != 0 || len(failures) != 1 {
		t.Fatalf("records %+v failures %+v", records, failures)
	}

	cov := eng.ComputeCoverage(context.Background(), req.Targets, records, model.CoverageOptions{})
	if len(cov.Records) != 0 {
		t.Fatalf("targets with no successful entity got coverage records: %+v", cov.Records)
	}
	if cov.CoverageFraction != 0 || cov.HarmonicMeanRevisit != nil {
		t.Fatalf("fraction %v harmonic mean %v, want 0 and nil", cov.CoverageFraction, cov.HarmonicMeanRevisit)
	}
}

func TestComputeDataMetricsKeepsRecordOrder(t *testing.T) {
	req := twoPassRequest()
	grid, err := req.Grid(0)
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	eng := NewEngine(WithWorkers(2))

	set, _, err := eng.Propagate(context.Background(), req.Satellites, grid)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	records, _, err := eng.ComputeAccess(context.Background(), set, req.Satellites, req.Targets, model.Constraints{}, grid)
	if err != nil {
		t.Fatalf("ComputeAccess: %v", err)
	}

	ghost := model.AccessSample{SatelliteID: "ghost", InstrumentID: "cam", Start: start, Duration: time.Minute}
	records = append(records, model.AccessRecord{TargetID: "equator", Samples: []model.AccessSample{ghost}})

	out, failures, err := eng.ComputeDataMetrics(context.Background(), records, set, req.Targets, grid)
	if err != nil {
		t.Fatalf("ComputeDataMetrics: %v", err)
	}
	if len(out) != len(records) || len(out[0].Samples) != 2 || len(out[2].Samples) != 0 {
		t.Fatalf("data metrics records out of order: %+v", out)
	}
	if len(failures) != 1 || failures[0].Stage != model.StageDataMetrics || failures[0].SatelliteID != "ghost" {
		t.Fatalf("failures: %+v", failures)
	}

	// Both equator records merge into one coverage record.
	cov := eng.ComputeCoverage(context.Background(), req.Targets, records, model.CoverageOptions{})
	if len(cov.Records) != 2 || cov.Records[0].NumberSamples != 3 {
		t.Fatalf("coverage records: %+v", cov.Records)
	}
	if cov.CoverageFraction != 0.5 {
		t.Fatalf("coverage fraction %v, want 0.5", cov.CoverageFraction)
	}
}

func TestForEachRecoversTaskPanics(t *testing.T) {
	eng := NewEngine(WithWorkers(2))
	done := make([]bool, 4)
	panicked := make([]error, 4)
	err := eng.forEach(context.Background(), len(done), func(i int) {
		if i == 2 {
			var m map[string]int
			m["boom"] = i
		}
		done[i] = true
	}, func(i int, err error) {
		panicked[i] = err
	})
	if err != nil {
		t.Fatalf("forEach: %v", err)
	}
	for i := range done {
		if i == 2 {
			if done[i] || !errors.Is(panicked[i], ErrTaskPanic) {
				t.Fatalf("task 2: done %v err %v", done[i], panicked[i])
			}
			continue
		}
		if !done[i] || panicked[i] != nil {
			t.Fatalf("task %d: done %v err %v", i, done[i], panicked[i])
		}
	}
	if failureKind(panicked[2]) != "panic" {
		t.Fatalf("failure kind %q, want panic", failureKind(panicked[2]))
	}
}
