package core

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/coverage-analyzer/model"
)

// SampleMetrics computes the instantaneous geometry at every ephemeris
// instant t inside the access sample, i.e. Start <= t and
// t+step <= Start+Duration.
func (e *Evaluator) SampleMetrics(s model.AccessSample, eph []model.EphemerisSample, target model.Target, step time.Duration) (model.DataMetricsSample, error) {
	out := model.DataMetricsSample{AccessSample: s, Metrics: []model.InstantaneousMetric{}}
	end := s.End()
	for _, es := range eph {
		if es.Time.Before(s.Start) {
			continue
		}
		if es.Time.Add(step).After(end) {
			break
		}
		g, err := e.Geometry(es, target)
		if err != nil {
			return model.DataMetricsSample{}, fmt.Errorf("at %s: %w", es.Time.Format(time.RFC3339), err)
		}
		out.Metrics = append(out.Metrics, model.InstantaneousMetric{
			Time:           es.Time,
			IncidenceAngle: g.IncidenceAngle,
			LookAngle:      g.LookAngle,
			Range:          g.Range,
			SolarZenith:    g.SolarZenith,
		})
	}
	return out, nil
}

// ComputeDataMetrics evaluates every sample of every record sequentially.
// Samples whose geometry is undefined are dropped and reported as failures.
// Records whose target or satellite ephemeris is unknown are reported too.
func (e *Evaluator) ComputeDataMetrics(
	records []model.AccessRecord,
	ephemeris map[string][]model.EphemerisSample,
	targets map[string]model.Target,
	step time.Duration,
) ([]model.DataMetricsRecord, []model.EntityFailure) {
	var failures []model.EntityFailure
	out := make([]model.DataMetricsRecord, 0, len(records))
	for _, rec := range records {
		dr := model.DataMetricsRecord{TargetID: rec.TargetID, Samples: []model.DataMetricsSample{}}
		target, ok := targets[rec.TargetID]
		for _, s := range rec.Samples {
			fail := model.EntityFailure{
				Stage:        model.StageDataMetrics,
				SatelliteID:  s.SatelliteID,
				InstrumentID: s.InstrumentID,
				TargetID:     rec.TargetID,
			}
			if !ok {
				fail.Err = fmt.Errorf("unknown target %q", rec.TargetID)
				failures = append(failures, fail)
				continue
			}
			eph, found := ephemeris[s.SatelliteID]
			if !found {
				fail.Err = fmt.Errorf("no ephemeris for satellite %q", s.SatelliteID)
				failures = append(failures, fail)
				continue
			}
			ds, err := e.SampleMetrics(s, eph, target, step)
			if err != nil {
				fail.Err = err
				failures = append(failures, fail)
				continue
			}
			dr.Samples = append(dr.Samples, ds)
		}
		out = append(out, dr)
	}
	return out, failures
}
