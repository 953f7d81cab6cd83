package core

import (
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/soniakeys/meeus/v3/julian"

	"github.com/signalsfoundry/coverage-analyzer/model"
)

// GMST returns the Greenwich mean sidereal angle at t in radians.
func GMST(t time.Time) float64 {
	return satellite.ThetaG_JD(julian.TimeToJD(t.UTC()))
}

func rotateZ(v Vec3, angle float64) Vec3 {
	s, c := math.Sincos(angle)
	return Vec3{
		X: c*v.X - s*v.Y,
		Y: s*v.X + c*v.Y,
		Z: v.Z,
	}
}

// InertialToFixed rotates an inertial state into the body-fixed frame at t.
// Velocity is made relative to the rotating frame by removing ω×r.
func (b Body) InertialToFixed(t time.Time, r, v Vec3) (Vec3, Vec3) {
	theta := GMST(t)
	rf := rotateZ(r, -theta)
	vf := rotateZ(v, -theta)
	omega := Vec3{Z: b.RotationRate}
	return rf, vf.Sub(omega.Cross(rf))
}

// FixedToInertial is the inverse of InertialToFixed.
func (b Body) FixedToInertial(t time.Time, r, v Vec3) (Vec3, Vec3) {
	theta := GMST(t)
	omega := Vec3{Z: b.RotationRate}
	vi := v.Add(omega.Cross(r))
	return rotateZ(r, theta), rotateZ(vi, theta)
}

// inFrame returns the sample state expressed in the requested frame.
func (b Body) inFrame(s model.EphemerisSample, frame model.ReferenceFrame) (Vec3, Vec3, error) {
	r, v := vecOf(s.Position), vecOf(s.Velocity)
	switch {
	case s.Frame == frame:
		return r, v, nil
	case s.Frame == model.FrameICRF && frame == model.FrameITRS:
		rf, vf := b.InertialToFixed(s.Time, r, v)
		return rf, vf, nil
	case s.Frame == model.FrameITRS && frame == model.FrameICRF:
		ri, vi := b.FixedToInertial(s.Time, r, v)
		return ri, vi, nil
	default:
		return Vec3{}, Vec3{}, fmt.Errorf("unsupported frame conversion %q -> %q", s.Frame, frame)
	}
}
