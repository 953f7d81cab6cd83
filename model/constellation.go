package model

import (
	"fmt"
	"math"
)

// WalkerConfiguration selects how orbital planes are spread in RAAN.
type WalkerConfiguration string

const (
	// WalkerDelta spreads planes over 360 degrees of RAAN.
	WalkerDelta WalkerConfiguration = "delta"
	// WalkerStar spreads planes over 180 degrees of RAAN.
	WalkerStar WalkerConfiguration = "star"
)

// WalkerConstellation arranges NumberSatellites copies of a lead orbit in
// NumberPlanes equally spaced planes. RelativeSpacing shifts the true
// anomaly by RelativeSpacing*360/NumberSatellites between adjacent planes.
type WalkerConstellation struct {
	ID               string              `json:"id"`
	Name             string              `json:"name,omitempty"`
	Configuration    WalkerConfiguration `json:"configuration,omitempty"`
	Orbit            OrbitSpec           `json:"orbit"`
	Instruments      []Instrument        `json:"instruments,omitempty"`
	NumberSatellites int                 `json:"number_satellites"`
	NumberPlanes     int                 `json:"number_planes"`
	RelativeSpacing  int                 `json:"relative_spacing,omitempty"`
}

func (w WalkerConstellation) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("%w: constellation id is required", ErrInvalidSatellite)
	}
	switch w.Configuration {
	case WalkerDelta, WalkerStar, "":
	default:
		return fmt.Errorf("%w: constellation %s has unknown configuration %q", ErrInvalidSatellite, w.ID, w.Configuration)
	}
	if w.NumberSatellites < 1 || w.NumberPlanes < 1 {
		return fmt.Errorf("%w: constellation %s needs at least one satellite and plane", ErrInvalidSatellite, w.ID)
	}
	if w.NumberPlanes > w.NumberSatellites {
		return fmt.Errorf("%w: constellation %s has %d planes for %d satellites",
			ErrInvalidSatellite, w.ID, w.NumberPlanes, w.NumberSatellites)
	}
	if w.NumberSatellites%w.NumberPlanes != 0 {
		return fmt.Errorf("%w: constellation %s: %d satellites do not divide into %d planes",
			ErrInvalidSatellite, w.ID, w.NumberSatellites, w.NumberPlanes)
	}
	if w.RelativeSpacing < 0 || w.RelativeSpacing >= w.NumberPlanes {
		return fmt.Errorf("%w: constellation %s relative_spacing %d must be in [0,%d)",
			ErrInvalidSatellite, w.ID, w.RelativeSpacing, w.NumberPlanes)
	}
	switch w.Orbit.State.(type) {
	case CircularOrbit, KeplerianOrbit:
	case nil:
		return fmt.Errorf("%w: constellation %s has no lead orbit", ErrInvalidSatellite, w.ID)
	default:
		return fmt.Errorf("%w: constellation %s lead orbit must be circular or keplerian, got %s",
			ErrInvalidSatellite, w.ID, w.Orbit.State.Kind())
	}
	return w.Orbit.State.Validate()
}

// Satellites expands the constellation into its member satellites, named
// <id>-<plane>-<slot> with one-based indices.
func (w WalkerConstellation) Satellites() ([]Satellite, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	perPlane := w.NumberSatellites / w.NumberPlanes
	spread := 360.0
	if w.Configuration == WalkerStar {
		spread = 180.0
	}

	out := make([]Satellite, 0, w.NumberSatellites)
	for p := 0; p < w.NumberPlanes; p++ {
		dRAAN := spread * float64(p) / float64(w.NumberPlanes)
		for s := 0; s < perPlane; s++ {
			dTA := 360*float64(s)/float64(perPlane) +
				360*float64(w.RelativeSpacing*p)/float64(w.NumberSatellites)
			orbit := shiftOrbit(w.Orbit.State, dRAAN, dTA)
			sat := Satellite{
				ID:          fmt.Sprintf("%s-%d-%d", w.ID, p+1, s+1),
				Name:        w.Name,
				Orbit:       orbit,
				Instruments: w.Instruments,
			}
			if err := sat.Validate(); err != nil {
				return nil, err
			}
			out = append(out, sat)
		}
	}
	return out, nil
}

func shiftOrbit(o OrbitState, dRAAN, dTA float64) OrbitState {
	switch v := o.(type) {
	case CircularOrbit:
		v.RightAscensionAscendingNode = wrap360(v.RightAscensionAscendingNode + dRAAN)
		v.TrueAnomaly = wrap360(v.TrueAnomaly + dTA)
		return v
	case KeplerianOrbit:
		v.RightAscensionAscendingNode = wrap360(v.RightAscensionAscendingNode + dRAAN)
		v.TrueAnomaly = wrap360(v.TrueAnomaly + dTA)
		return v
	default:
		return o
	}
}

func wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}
