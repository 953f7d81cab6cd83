package core

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/solar"
)

// AstronomicalUnit in metres.
const AstronomicalUnit = 1.495978707e11

// SunPosition returns the geocentric position of the Sun at t in the
// inertial frame, in metres.
func SunPosition(t time.Time) Vec3 {
	jd := julian.TimeToJD(t.UTC())
	ra, dec := solar.ApparentEquatorial(jd)
	dist := solar.Radius(base.J2000Century(jd)) * AstronomicalUnit

	sinRA, cosRA := math.Sincos(ra.Rad())
	sinDec, cosDec := math.Sincos(dec.Rad())
	return Vec3{
		X: dist * cosDec * cosRA,
		Y: dist * cosDec * sinRA,
		Z: dist * sinDec,
	}
}

// SunRightAscension returns the apparent right ascension of the Sun at t in
// radians, in [0, 2π).
func SunRightAscension(t time.Time) float64 {
	ra, _ := solar.ApparentEquatorial(julian.TimeToJD(t.UTC()))
	return math.Mod(ra.Rad()+2*math.Pi, 2*math.Pi)
}

// SolarZenith returns the angle in degrees between the local vertical at a
// body-fixed point and the direction to the Sun at t.
func SolarZenith(t time.Time, point Vec3) float64 {
	sunFixed := rotateZ(SunPosition(t), -GMST(t))
	return angleBetween(point, sunFixed.Sub(point)) * rad
}

// IsSunlit reports whether an inertial position is outside the Earth's
// cylindrical shadow.
func (b Body) IsSunlit(t time.Time, r Vec3) bool {
	sunDir := SunPosition(t).Unit()
	along := r.Dot(sunDir)
	if along >= 0 {
		return true
	}
	perp := r.Sub(sunDir.Scale(along))
	return perp.Norm() > b.Radius
}
