package model

import (
	"encoding/json"
	"errors"
)

var (
	// ErrInvalidOrbitState indicates orbital elements outside their physical range.
	ErrInvalidOrbitState = errors.New("invalid orbit state")
	// ErrInvalidSensorGeometry indicates a malformed field of view or orientation.
	ErrInvalidSensorGeometry = errors.New("invalid sensor geometry")
	// ErrInvalidTarget indicates a target outside its coordinate bounds.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrInvalidSatellite indicates a satellite or constellation definition
	// that cannot be analysed.
	ErrInvalidSatellite = errors.New("invalid satellite")
)

// Stage names the pipeline step that produced an EntityFailure.
type Stage string

const (
	StagePropagation Stage = "propagation"
	StageAccess      Stage = "access"
	StageDataMetrics Stage = "datametrics"
)

// EntityFailure records a computation that was abandoned for one entity
// without aborting the rest of the batch.
type EntityFailure struct {
	Stage        Stage  `json:"stage"`
	SatelliteID  string `json:"satellite_id,omitempty"`
	InstrumentID string `json:"instrument_id,omitempty"`
	TargetID     string `json:"target_id,omitempty"`
	Err          error  `json:"-"`
}

// Error implements error so failures can be logged and matched directly.
func (f EntityFailure) Error() string {
	msg := string(f.Stage)
	if f.SatelliteID != "" {
		msg += " satellite=" + f.SatelliteID
	}
	if f.InstrumentID != "" {
		msg += " instrument=" + f.InstrumentID
	}
	if f.TargetID != "" {
		msg += " target=" + f.TargetID
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f EntityFailure) Unwrap() error { return f.Err }

// MarshalJSON adds the failure message under "error".
func (f EntityFailure) MarshalJSON() ([]byte, error) {
	type plain EntityFailure
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(f)}
	if f.Err != nil {
		out.Error = f.Err.Error()
	}
	return json.Marshal(out)
}
