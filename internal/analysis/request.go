package analysis

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/coverage-analyzer/core"
	"github.com/signalsfoundry/coverage-analyzer/model"
	"github.com/signalsfoundry/coverage-analyzer/timectrl"
)

// Request is a complete analysis job: a fleet, a target set and a horizon.
// Frame, Propagator and Step fall back to the engine defaults when empty.
type Request struct {
	Satellites     []model.Satellite           `json:"satellites,omitempty"`
	Constellations []model.WalkerConstellation `json:"constellations,omitempty"`
	Targets        []model.Target              `json:"targets"`

	Start    time.Time      `json:"start"`
	Duration model.Duration `json:"duration"`
	Step     model.Duration `json:"step,omitempty"`

	Frame      model.ReferenceFrame `json:"frame,omitempty"`
	Propagator core.PropagatorKind  `json:"propagator,omitempty"`

	Constraints model.Constraints     `json:"constraints"`
	Coverage    model.CoverageOptions `json:"coverage"`

	// DataMetrics enables the instantaneous geometry stage.
	DataMetrics bool `json:"data_metrics,omitempty"`
	// IncludeEphemeris copies the propagated ephemeris into the report.
	IncludeEphemeris bool `json:"include_ephemeris,omitempty"`
}

// Report is the result of Run.
type Report struct {
	RunID       string                    `json:"run_id"`
	Start       time.Time                 `json:"start"`
	End         time.Time                 `json:"end"`
	Step        model.Duration            `json:"step"`
	Frame       model.ReferenceFrame      `json:"frame"`
	Propagator  core.PropagatorKind       `json:"propagator"`
	Ephemeris   []model.Ephemeris         `json:"ephemeris,omitempty"`
	Access      []model.AccessRecord      `json:"access"`
	Coverage    model.CoverageResponse    `json:"coverage"`
	DataMetrics []model.DataMetricsRecord `json:"data_metrics,omitempty"`
	Failures    []model.EntityFailure     `json:"failures,omitempty"`
}

// Grid builds the time grid of the request, using defaultStep when Step is
// unset.
func (r Request) Grid(defaultStep time.Duration) (timectrl.TimeGrid, error) {
	step := r.Step.Std()
	if step == 0 {
		step = defaultStep
	}
	return timectrl.NewTimeGrid(r.Start, r.Duration.Std(), step)
}

// Fleet expands constellations and appends them to the explicit
// satellites. Satellite ids must be unique across the whole fleet.
func (r Request) Fleet() ([]model.Satellite, error) {
	out := make([]model.Satellite, 0, len(r.Satellites))
	out = append(out, r.Satellites...)
	for _, c := range r.Constellations {
		members, err := c.Satellites()
		if err != nil {
			return nil, err
		}
		out = append(out, members...)
	}
	if err := ValidateSatellites(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateSatellites checks every satellite and rejects duplicate ids.
func ValidateSatellites(sats []model.Satellite) error {
	seen := make(map[string]struct{}, len(sats))
	for _, s := range sats {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("%w: duplicate satellite id %q", model.ErrInvalidSatellite, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// ValidateTargets checks every target and rejects duplicate ids.
func ValidateTargets(targets []model.Target) error {
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: duplicate target id %q", model.ErrInvalidTarget, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

func targetIDs(targets []model.Target) []string {
	ids := make([]string, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	return ids
}

func targetIndex(targets []model.Target) map[string]model.Target {
	m := make(map[string]model.Target, len(targets))
	for _, t := range targets {
		m[t.ID] = t
	}
	return m
}
