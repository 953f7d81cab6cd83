package core

import (
	"fmt"
	"math"
	"time"

	"github.com/soniakeys/unit"

	"github.com/signalsfoundry/coverage-analyzer/model"
	"github.com/signalsfoundry/coverage-analyzer/tle"
)

// TropicalYear is the period of the Sun's mean motion in right ascension.
const TropicalYear = time.Duration(365.2421897 * 86400 * 1e9)

// Elements are mean classical elements at Epoch. Angles are in radians,
// SemiMajorAxis in metres.
type Elements struct {
	SemiMajorAxis float64
	Eccentricity  float64
	Inclination   float64
	RAAN          float64
	ArgPerigee    float64
	MeanAnomaly   float64
	Epoch         time.Time
}

// MeanMotion returns the two-body mean motion in rad/s.
func (e Elements) MeanMotion(b Body) float64 {
	return math.Sqrt(b.Mu / (e.SemiMajorAxis * e.SemiMajorAxis * e.SemiMajorAxis))
}

// ElementsOf reduces any orbit variant to classical elements. A zero orbit
// epoch is replaced by defaultEpoch.
func ElementsOf(o model.OrbitState, defaultEpoch time.Time, b Body) (Elements, error) {
	if o == nil {
		return Elements{}, fmt.Errorf("%w: orbit is missing", model.ErrInvalidOrbitState)
	}
	if err := o.Validate(); err != nil {
		return Elements{}, err
	}
	epoch := model.OrbitEpoch(o)
	if epoch.IsZero() {
		epoch = defaultEpoch
	}

	switch v := o.(type) {
	case model.TwoLineElements:
		el, err := tle.Parse(v.Line1, v.Line2)
		if err != nil {
			return Elements{}, fmt.Errorf("%w: %w", model.ErrInvalidOrbitState, err)
		}
		n := el.MeanMotion * 2 * math.Pi / 86400
		return Elements{
			SemiMajorAxis: math.Cbrt(b.Mu / (n * n)),
			Eccentricity:  el.Eccentricity,
			Inclination:   el.Inclination * deg,
			RAAN:          el.RAAN * deg,
			ArgPerigee:    el.ArgPerigee * deg,
			MeanAnomaly:   el.MeanAnomaly * deg,
			Epoch:         el.Epoch,
		}, nil

	case model.KeplerianOrbit:
		return Elements{
			SemiMajorAxis: b.Radius + v.Altitude,
			Eccentricity:  v.Eccentricity,
			Inclination:   v.Inclination * deg,
			RAAN:          v.RightAscensionAscendingNode * deg,
			ArgPerigee:    v.PerigeeArgument * deg,
			MeanAnomaly:   TrueToMean(v.TrueAnomaly*deg, v.Eccentricity),
			Epoch:         epoch,
		}, nil

	case model.CircularOrbit:
		return Elements{
			SemiMajorAxis: b.Radius + v.Altitude,
			Inclination:   v.Inclination * deg,
			RAAN:          v.RightAscensionAscendingNode * deg,
			MeanAnomaly:   v.TrueAnomaly * deg,
			Epoch:         epoch,
		}, nil

	case model.SunSynchronousOrbit:
		a := b.Radius + v.Altitude
		inc, err := SunSynchronousInclination(a, 0, b)
		if err != nil {
			return Elements{}, err
		}
		return Elements{
			SemiMajorAxis: a,
			Inclination:   inc,
			RAAN:          SunSynchronousRAAN(epoch, v.EquatorCrossingTime, v.EquatorCrossingAscending),
			MeanAnomaly:   v.TrueAnomaly * deg,
			Epoch:         epoch,
		}, nil

	default:
		return Elements{}, fmt.Errorf("%w: unsupported orbit kind %s", model.ErrInvalidOrbitState, o.Kind())
	}
}

// SunSynchronousInclination returns the inclination in radians at which J2
// nodal regression matches the Sun's mean motion.
func SunSynchronousInclination(a, e float64, b Body) (float64, error) {
	n := math.Sqrt(b.Mu / (a * a * a))
	p := a * (1 - e*e)
	rate := 2 * math.Pi / TropicalYear.Seconds()
	cosI := -2 * rate * p * p / (3 * n * b.J2 * b.Radius * b.Radius)
	if cosI < -1 || cosI > 1 {
		return 0, fmt.Errorf("%w: no sun-synchronous inclination for semi-major axis %.0f m",
			model.ErrInvalidOrbitState, a)
	}
	return math.Acos(cosI), nil
}

// SunSynchronousRAAN returns the right ascension of the ascending node in
// radians that places the equator crossing at the given local solar time.
// A descending crossing at LTDN means an ascending crossing at LTDN+12h.
func SunSynchronousRAAN(epoch time.Time, crossing time.Duration, ascending bool) float64 {
	ltan := crossing
	if !ascending {
		ltan += 12 * time.Hour
	}
	offset := unit.AngleFromDeg((ltan.Hours() - 12) * 15)
	return (unit.Angle(SunRightAscension(epoch)) + offset).Mod1().Rad()
}

// TrueToMean converts a true anomaly to a mean anomaly (radians).
func TrueToMean(nu, e float64) float64 {
	if e == 0 {
		return nu
	}
	E := 2 * math.Atan2(math.Sqrt(1-e)*math.Sin(nu/2), math.Sqrt(1+e)*math.Cos(nu/2))
	return normalizeAngle(E - e*math.Sin(E))
}

// EccentricAnomaly solves Kepler's equation M = E - e sin E by Newton
// iteration. It reports false when the iteration does not converge.
func EccentricAnomaly(M, e float64) (float64, bool) {
	const (
		tolerance = 1e-12
		maxIter   = 50
	)
	M = normalizeAngle(M)
	E := M
	if e > 0.8 {
		E = math.Pi
	}
	for i := 0; i < maxIter; i++ {
		f := E - e*math.Sin(E) - M
		step := f / (1 - e*math.Cos(E))
		E -= step
		if math.Abs(step) < tolerance {
			return E, true
		}
	}
	return E, false
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// osculatingEccentricity computes the eccentricity implied by an inertial
// state.
func osculatingEccentricity(r, v Vec3, mu float64) float64 {
	rn := r.Norm()
	ev := r.Scale(v.Dot(v) - mu/rn).Sub(v.Scale(r.Dot(v))).Scale(1 / mu)
	return ev.Norm()
}
