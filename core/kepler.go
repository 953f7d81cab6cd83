package core

import (
	"fmt"
	"math"
	"time"
)

// keplerStateFunc returns a closed-form two-body propagator. With j2 set,
// the node, argument of perigee and mean anomaly drift at their J2 secular
// rates.
func keplerStateFunc(el Elements, b Body, j2 bool) StateFunc {
	n := el.MeanMotion(b)
	var dRAAN, dArgP, dM float64
	if j2 {
		p := el.SemiMajorAxis * (1 - el.Eccentricity*el.Eccentricity)
		k := n * b.J2 * (b.Radius / p) * (b.Radius / p)
		cosI := math.Cos(el.Inclination)
		dRAAN = -1.5 * k * cosI
		dArgP = 0.75 * k * (5*cosI*cosI - 1)
		dM = 0.75 * k * math.Sqrt(1-el.Eccentricity*el.Eccentricity) * (3*cosI*cosI - 1)
	}

	return func(elapsed time.Duration) (Vec3, Vec3, error) {
		dt := elapsed.Seconds()
		cur := el
		cur.RAAN = el.RAAN + dRAAN*dt
		cur.ArgPerigee = el.ArgPerigee + dArgP*dt
		cur.MeanAnomaly = el.MeanAnomaly + (n+dM)*dt
		return stateFromElements(cur, b.Mu)
	}
}

// stateFromElements converts classical elements to an inertial state.
func stateFromElements(el Elements, mu float64) (Vec3, Vec3, error) {
	e := el.Eccentricity
	E, ok := EccentricAnomaly(el.MeanAnomaly, e)
	if !ok {
		return Vec3{}, Vec3{}, fmt.Errorf("%w: kepler equation did not converge (M=%g, e=%g)",
			ErrPropagationDivergence, el.MeanAnomaly, e)
	}

	a := el.SemiMajorAxis
	sinE, cosE := math.Sincos(E)
	sq := math.Sqrt(1 - e*e)
	r := a * (1 - e*cosE)

	// Perifocal frame: P toward perigee, Q 90° ahead in the orbit plane.
	posP := Vec3{X: a * (cosE - e), Y: a * sq * sinE}
	vk := math.Sqrt(mu*a) / r
	velP := Vec3{X: -vk * sinE, Y: vk * sq * cosE}

	return perifocalToInertial(posP, el), perifocalToInertial(velP, el), nil
}

// perifocalToInertial applies R3(-Ω) R1(-i) R3(-ω).
func perifocalToInertial(v Vec3, el Elements) Vec3 {
	sO, cO := math.Sincos(el.RAAN)
	si, ci := math.Sincos(el.Inclination)
	sw, cw := math.Sincos(el.ArgPerigee)

	return Vec3{
		X: (cO*cw-sO*sw*ci)*v.X + (-cO*sw-sO*cw*ci)*v.Y,
		Y: (sO*cw+cO*sw*ci)*v.X + (-sO*sw+cO*cw*ci)*v.Y,
		Z: (sw*si)*v.X + (cw*si)*v.Y,
	}
}
