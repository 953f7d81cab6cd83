package model

import (
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/coverage-analyzer/tle"
)

// Reference body constants for the Earth (WGS-84 radius, EGM-96 J2).
const (
	EarthRadius       = 6378137.0       // metres
	EarthMu           = 3.986004418e14  // m^3/s^2
	EarthJ2           = 1.08262668e-3   // dimensionless
	EarthRotationRate = 7.2921158553e-5 // rad/s

	// MaxSunSynchronousAltitude is the altitude above which no inclination
	// can match the nodal precession to the mean motion of the Sun.
	MaxSunSynchronousAltitude = 5980991.22858
)

// OrbitKind discriminates the OrbitState variants.
type OrbitKind string

const (
	OrbitTLE            OrbitKind = "tle"
	OrbitKeplerian      OrbitKind = "keplerian"
	OrbitCircular       OrbitKind = "circular"
	OrbitSunSynchronous OrbitKind = "sso"
)

// OrbitState is an immutable initial orbital condition. The set of
// implementations is closed to this package.
type OrbitState interface {
	Kind() OrbitKind
	Validate() error
	isOrbitState()
}

// TwoLineElements is an orbit given as a NORAD element set.
type TwoLineElements struct {
	Line1 string
	Line2 string
}

// KeplerianOrbit is an elliptical orbit described by classical elements.
// Angles are in degrees, altitude is the mean altitude in metres.
type KeplerianOrbit struct {
	Altitude                    float64
	Eccentricity                float64
	Inclination                 float64
	RightAscensionAscendingNode float64
	PerigeeArgument             float64
	TrueAnomaly                 float64
	Epoch                       time.Time // zero means the analysis start
}

// CircularOrbit is the zero-eccentricity special case of KeplerianOrbit.
type CircularOrbit struct {
	Altitude                    float64
	Inclination                 float64
	RightAscensionAscendingNode float64
	TrueAnomaly                 float64
	Epoch                       time.Time
}

// SunSynchronousOrbit is a circular orbit whose inclination and node are
// derived from the altitude and the local solar time of an equator crossing.
type SunSynchronousOrbit struct {
	Altitude float64
	// EquatorCrossingTime is the local solar time of day of the crossing,
	// as an offset from midnight.
	EquatorCrossingTime      time.Duration
	EquatorCrossingAscending bool
	TrueAnomaly              float64
	Epoch                    time.Time
}

func (TwoLineElements) Kind() OrbitKind     { return OrbitTLE }
func (KeplerianOrbit) Kind() OrbitKind      { return OrbitKeplerian }
func (CircularOrbit) Kind() OrbitKind       { return OrbitCircular }
func (SunSynchronousOrbit) Kind() OrbitKind { return OrbitSunSynchronous }

func (TwoLineElements) isOrbitState()     {}
func (KeplerianOrbit) isOrbitState()      {}
func (CircularOrbit) isOrbitState()       {}
func (SunSynchronousOrbit) isOrbitState() {}

// Validate checks both lines with tle.Validate.
func (o TwoLineElements) Validate() error {
	if err := tle.Validate(o.Line1, o.Line2); err != nil {
		return fmt.Errorf("%w: tle: %w", ErrInvalidOrbitState, err)
	}
	return nil
}

func (o KeplerianOrbit) Validate() error {
	if err := checkAltitude(o.Altitude); err != nil {
		return err
	}
	if math.IsNaN(o.Eccentricity) || o.Eccentricity < 0 || o.Eccentricity >= 1 {
		return fmt.Errorf("%w: eccentricity %g must be in [0,1)", ErrInvalidOrbitState, o.Eccentricity)
	}
	a := EarthRadius + o.Altitude
	if perigee := a * (1 - o.Eccentricity); perigee <= EarthRadius {
		return fmt.Errorf("%w: perigee radius %.0f m is below the surface", ErrInvalidOrbitState, perigee)
	}
	return checkAngles(
		angleField{"inclination", o.Inclination, 180},
		angleField{"right_ascension_ascending_node", o.RightAscensionAscendingNode, 360},
		angleField{"perigee_argument", o.PerigeeArgument, 360},
		angleField{"true_anomaly", o.TrueAnomaly, 360},
	)
}

func (o CircularOrbit) Validate() error {
	if err := checkAltitude(o.Altitude); err != nil {
		return err
	}
	return checkAngles(
		angleField{"inclination", o.Inclination, 180},
		angleField{"right_ascension_ascending_node", o.RightAscensionAscendingNode, 360},
		angleField{"true_anomaly", o.TrueAnomaly, 360},
	)
}

func (o SunSynchronousOrbit) Validate() error {
	if err := checkAltitude(o.Altitude); err != nil {
		return err
	}
	if o.Altitude >= MaxSunSynchronousAltitude {
		return fmt.Errorf("%w: altitude %.0f m exceeds the sun-synchronous limit %.0f m",
			ErrInvalidOrbitState, o.Altitude, MaxSunSynchronousAltitude)
	}
	if o.EquatorCrossingTime < 0 || o.EquatorCrossingTime >= 24*time.Hour {
		return fmt.Errorf("%w: equator_crossing_time %v must be within one day", ErrInvalidOrbitState, o.EquatorCrossingTime)
	}
	return checkAngles(angleField{"true_anomaly", o.TrueAnomaly, 360})
}

func checkAltitude(alt float64) error {
	if math.IsNaN(alt) || math.IsInf(alt, 0) || alt <= 0 {
		return fmt.Errorf("%w: altitude %g m must be positive", ErrInvalidOrbitState, alt)
	}
	return nil
}

type angleField struct {
	name  string
	value float64
	upper float64
}

func checkAngles(fields ...angleField) error {
	for _, f := range fields {
		if math.IsNaN(f.value) || f.value < 0 || f.value >= f.upper {
			return fmt.Errorf("%w: %s %g must be in [0,%g)", ErrInvalidOrbitState, f.name, f.value, f.upper)
		}
	}
	return nil
}

// OrbitEpoch returns the epoch carried by o, or the zero time when the
// orbit defers to the analysis start. TLE epochs are embedded in the lines
// and resolved by the propagator.
func OrbitEpoch(o OrbitState) time.Time {
	switch v := o.(type) {
	case KeplerianOrbit:
		return v.Epoch
	case CircularOrbit:
		return v.Epoch
	case SunSynchronousOrbit:
		return v.Epoch
	default:
		return time.Time{}
	}
}
