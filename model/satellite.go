package model

import (
	"encoding/json"
	"fmt"
	"math"
)

// Shape is the angular outline of a sensor field.
type Shape string

const (
	ShapeCircular    Shape = "CIRCULAR"
	ShapeRectangular Shape = "RECTANGULAR"
)

// SensorGeometry is a closed angular region about the sensor Z axis.
// A circular field populates Diameter; a rectangular field populates
// AngleHeight (about the sensor X axis) and AngleWidth (about Y). All
// angles are full widths in degrees.
type SensorGeometry struct {
	Shape       Shape   `json:"shape"`
	Diameter    float64 `json:"diameter,omitempty"`
	AngleHeight float64 `json:"angle_height,omitempty"`
	AngleWidth  float64 `json:"angle_width,omitempty"`
}

// CircularField returns a circular geometry of the given diameter.
func CircularField(diameter float64) SensorGeometry {
	return SensorGeometry{Shape: ShapeCircular, Diameter: diameter}
}

// RectangularField returns a rectangular geometry.
func RectangularField(height, width float64) SensorGeometry {
	return SensorGeometry{Shape: ShapeRectangular, AngleHeight: height, AngleWidth: width}
}

// Validate enforces that exactly the payload of the declared shape is set
// and that each angle lies in (0,180). An empty shape means circular.
func (g SensorGeometry) Validate() error {
	switch g.Shape {
	case ShapeCircular, "":
		if g.AngleHeight != 0 || g.AngleWidth != 0 {
			return fmt.Errorf("%w: circular field cannot carry angle_height or angle_width", ErrInvalidSensorGeometry)
		}
		return checkFieldAngle("diameter", g.Diameter)
	case ShapeRectangular:
		if g.Diameter != 0 {
			return fmt.Errorf("%w: rectangular field cannot carry a diameter", ErrInvalidSensorGeometry)
		}
		if err := checkFieldAngle("angle_height", g.AngleHeight); err != nil {
			return err
		}
		return checkFieldAngle("angle_width", g.AngleWidth)
	default:
		return fmt.Errorf("%w: unknown shape %q", ErrInvalidSensorGeometry, g.Shape)
	}
}

func checkFieldAngle(name string, v float64) error {
	if math.IsNaN(v) || v <= 0 || v >= 180 {
		return fmt.Errorf("%w: %s %g must be in (0,180)", ErrInvalidSensorGeometry, name, v)
	}
	return nil
}

// Quaternion is a rotation stored as (x, y, z, w).
type Quaternion [4]float64

// IdentityQuaternion leaves vectors unchanged.
var IdentityQuaternion = Quaternion{0, 0, 0, 1}

// Normalized returns q scaled to unit length.
func (q Quaternion) Normalized() (Quaternion, error) {
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Quaternion{}, fmt.Errorf("%w: orientation quaternion %v has no direction", ErrInvalidSensorGeometry, q)
	}
	return Quaternion{q[0] / n, q[1] / n, q[2] / n, q[3] / n}, nil
}

// Instrument is a pointed sensor mounted on a satellite.
type Instrument struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	FieldOfView SensorGeometry `json:"field_of_view"`
	// FieldOfRegard, when set, is the region reachable with pointing and
	// replaces FieldOfView in access tests.
	FieldOfRegard *SensorGeometry `json:"field_of_regard,omitempty"`
	// Orientation of the sensor frame relative to the body frame; nil is
	// the identity (boresight at nadir).
	Orientation *Quaternion `json:"orientation,omitempty"`
	// MinAccessTime drops access samples shorter than this.
	MinAccessTime   Duration `json:"min_access_time,omitempty"`
	ReqSelfSunlit   *bool    `json:"req_self_sunlit,omitempty"`
	ReqTargetSunlit *bool    `json:"req_target_sunlit,omitempty"`
}

// AccessField returns the geometry used for access tests.
func (in Instrument) AccessField() SensorGeometry {
	if in.FieldOfRegard != nil {
		return *in.FieldOfRegard
	}
	return in.FieldOfView
}

// SensorOrientation returns the normalised orientation quaternion.
func (in Instrument) SensorOrientation() (Quaternion, error) {
	if in.Orientation == nil {
		return IdentityQuaternion, nil
	}
	return in.Orientation.Normalized()
}

func (in Instrument) Validate() error {
	if in.ID == "" {
		return fmt.Errorf("%w: instrument id is required", ErrInvalidSensorGeometry)
	}
	if err := in.FieldOfView.Validate(); err != nil {
		return fmt.Errorf("instrument %s field_of_view: %w", in.ID, err)
	}
	if in.FieldOfRegard != nil {
		if err := in.FieldOfRegard.Validate(); err != nil {
			return fmt.Errorf("instrument %s field_of_regard: %w", in.ID, err)
		}
	}
	if _, err := in.SensorOrientation(); err != nil {
		return fmt.Errorf("instrument %s: %w", in.ID, err)
	}
	if in.MinAccessTime < 0 {
		return fmt.Errorf("%w: instrument %s min_access_time %v is negative",
			ErrInvalidSensorGeometry, in.ID, in.MinAccessTime.Std())
	}
	return nil
}

// Constraints are request-level sunlit requirements. A nil field means no
// requirement; an instrument's own requirement takes precedence.
type Constraints struct {
	SatelliteSunlit *bool `json:"satellite_sunlit,omitempty"`
	TargetSunlit    *bool `json:"target_sunlit,omitempty"`
}

// Resolve merges the instrument overrides into c.
func (c Constraints) Resolve(in Instrument) Constraints {
	out := c
	if in.ReqSelfSunlit != nil {
		out.SatelliteSunlit = in.ReqSelfSunlit
	}
	if in.ReqTargetSunlit != nil {
		out.TargetSunlit = in.ReqTargetSunlit
	}
	return out
}

// Satellite is a spacecraft with its initial orbit and instruments.
type Satellite struct {
	ID          string
	Name        string
	Orbit       OrbitState
	Instruments []Instrument
}

func (s Satellite) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: satellite id is required", ErrInvalidSatellite)
	}
	if s.Orbit == nil {
		return fmt.Errorf("%w: satellite %s has no orbit", ErrInvalidSatellite, s.ID)
	}
	if err := s.Orbit.Validate(); err != nil {
		return fmt.Errorf("satellite %s: %w", s.ID, err)
	}
	seen := make(map[string]struct{}, len(s.Instruments))
	for _, in := range s.Instruments {
		if err := in.Validate(); err != nil {
			return fmt.Errorf("satellite %s: %w", s.ID, err)
		}
		if _, dup := seen[in.ID]; dup {
			return fmt.Errorf("%w: satellite %s has duplicate instrument id %q", ErrInvalidSatellite, s.ID, in.ID)
		}
		seen[in.ID] = struct{}{}
	}
	return nil
}

type satelliteJSON struct {
	ID          string       `json:"id"`
	Name        string       `json:"name,omitempty"`
	Orbit       OrbitSpec    `json:"orbit"`
	Instruments []Instrument `json:"instruments,omitempty"`
}

func (s Satellite) MarshalJSON() ([]byte, error) {
	return json.Marshal(satelliteJSON{
		ID:          s.ID,
		Name:        s.Name,
		Orbit:       OrbitSpec{State: s.Orbit},
		Instruments: s.Instruments,
	})
}

func (s *Satellite) UnmarshalJSON(data []byte) error {
	var in satelliteJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Satellite{ID: in.ID, Name: in.Name, Orbit: in.Orbit.State, Instruments: in.Instruments}
	return nil
}
