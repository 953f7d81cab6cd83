package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// OrbitSpec carries an OrbitState through JSON using a "type"
// discriminator (tle, keplerian, circular, sso). Decoding validates the
// decoded variant.
type OrbitSpec struct {
	State OrbitState
}

type orbitJSON struct {
	Type                     OrbitKind  `json:"type"`
	TLE                      []string   `json:"tle,omitempty"`
	Altitude                 *float64   `json:"altitude,omitempty"`
	Eccentricity             float64    `json:"eccentricity,omitempty"`
	Inclination              float64    `json:"inclination,omitempty"`
	RightAscensionAscending  float64    `json:"right_ascension_ascending_node,omitempty"`
	PerigeeArgument          float64    `json:"perigee_argument,omitempty"`
	TrueAnomaly              float64    `json:"true_anomaly,omitempty"`
	Epoch                    *time.Time `json:"epoch,omitempty"`
	EquatorCrossingTime      string     `json:"equator_crossing_time,omitempty"`
	EquatorCrossingAscending *bool      `json:"equator_crossing_ascending,omitempty"`
}

func (s OrbitSpec) MarshalJSON() ([]byte, error) {
	if s.State == nil {
		return []byte("null"), nil
	}
	out := orbitJSON{Type: s.State.Kind()}
	switch v := s.State.(type) {
	case TwoLineElements:
		out.TLE = []string{v.Line1, v.Line2}
	case KeplerianOrbit:
		out.Altitude = &v.Altitude
		out.Eccentricity = v.Eccentricity
		out.Inclination = v.Inclination
		out.RightAscensionAscending = v.RightAscensionAscendingNode
		out.PerigeeArgument = v.PerigeeArgument
		out.TrueAnomaly = v.TrueAnomaly
		out.Epoch = epochPtr(v.Epoch)
	case CircularOrbit:
		out.Altitude = &v.Altitude
		out.Inclination = v.Inclination
		out.RightAscensionAscending = v.RightAscensionAscendingNode
		out.TrueAnomaly = v.TrueAnomaly
		out.Epoch = epochPtr(v.Epoch)
	case SunSynchronousOrbit:
		out.Altitude = &v.Altitude
		out.TrueAnomaly = v.TrueAnomaly
		out.Epoch = epochPtr(v.Epoch)
		out.EquatorCrossingTime = formatTimeOfDay(v.EquatorCrossingTime)
		asc := v.EquatorCrossingAscending
		out.EquatorCrossingAscending = &asc
	}
	return json.Marshal(out)
}

func (s *OrbitSpec) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var in orbitJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrbitState, err)
	}

	var epoch time.Time
	if in.Epoch != nil {
		epoch = in.Epoch.UTC()
	}
	if in.Type != OrbitTLE && in.Altitude == nil {
		return fmt.Errorf("%w: %s orbit requires altitude", ErrInvalidOrbitState, in.Type)
	}

	var state OrbitState
	switch in.Type {
	case OrbitTLE:
		if len(in.TLE) != 2 {
			return fmt.Errorf("%w: tle requires exactly 2 lines, got %d", ErrInvalidOrbitState, len(in.TLE))
		}
		state = TwoLineElements{Line1: in.TLE[0], Line2: in.TLE[1]}
	case OrbitKeplerian:
		state = KeplerianOrbit{
			Altitude:                    *in.Altitude,
			Eccentricity:                in.Eccentricity,
			Inclination:                 in.Inclination,
			RightAscensionAscendingNode: in.RightAscensionAscending,
			PerigeeArgument:             in.PerigeeArgument,
			TrueAnomaly:                 in.TrueAnomaly,
			Epoch:                       epoch,
		}
	case OrbitCircular:
		state = CircularOrbit{
			Altitude:                    *in.Altitude,
			Inclination:                 in.Inclination,
			RightAscensionAscendingNode: in.RightAscensionAscending,
			TrueAnomaly:                 in.TrueAnomaly,
			Epoch:                       epoch,
		}
	case OrbitSunSynchronous:
		crossing, err := parseTimeOfDay(in.EquatorCrossingTime)
		if err != nil {
			return err
		}
		ascending := true
		if in.EquatorCrossingAscending != nil {
			ascending = *in.EquatorCrossingAscending
		}
		state = SunSynchronousOrbit{
			Altitude:                 *in.Altitude,
			EquatorCrossingTime:      crossing,
			EquatorCrossingAscending: ascending,
			TrueAnomaly:              in.TrueAnomaly,
			Epoch:                    epoch,
		}
	default:
		return fmt.Errorf("%w: unknown orbit type %q", ErrInvalidOrbitState, in.Type)
	}

	if err := state.Validate(); err != nil {
		return err
	}
	s.State = state
	return nil
}

func epochPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// parseTimeOfDay accepts "15:04" or "15:04:05".
func parseTimeOfDay(s string) (time.Duration, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("%w: equator_crossing_time %q is not HH:MM[:SS]", ErrInvalidOrbitState, s)
}

func formatTimeOfDay(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	sec := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}
