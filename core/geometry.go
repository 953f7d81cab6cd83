package core

import (
	"math"

	"github.com/signalsfoundry/coverage-analyzer/model"
)

const (
	deg = math.Pi / 180
	rad = 180 / math.Pi
)

// Body is the spherical reference body all geometry is computed against.
type Body struct {
	Radius       float64 // metres
	Mu           float64 // gravitational parameter, m^3/s^2
	J2           float64
	RotationRate float64 // rad/s
}

// Earth is the default reference body.
var Earth = Body{
	Radius:       model.EarthRadius,
	Mu:           model.EarthMu,
	J2:           model.EarthJ2,
	RotationRate: model.EarthRotationRate,
}

// Vec3 is a Cartesian vector in metres (or metres per second).
type Vec3 struct {
	X, Y, Z float64
}

func vecOf(a [3]float64) Vec3 { return Vec3{a[0], a[1], a[2]} }

// Array returns v as a fixed-size array.
func (v Vec3) Array() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross returns v × o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		X: v.Y*o.Z - v.Z*o.Y,
		Y: v.Z*o.X - v.X*o.Z,
		Z: v.X*o.Y - v.Y*o.X,
	}
}

// Unit returns v scaled to length one. The zero vector is returned as is.
func (v Vec3) Unit() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

func (v Vec3) finite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// angleBetween returns the angle between a and b in radians.
func angleBetween(a, b Vec3) float64 {
	if a.Norm() == 0 || b.Norm() == 0 {
		return 0
	}
	return math.Atan2(a.Cross(b).Norm(), a.Dot(b))
}

func clampUnit(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}

// ElevationDegrees returns the elevation angle of the target as seen from
// the observer, in degrees. 0° = geometric horizon, 90° = overhead.
func ElevationDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)
	if v.Norm() == 0 || observer.Norm() == 0 {
		return 90
	}
	return 90 - angleBetween(v, observer)*rad
}

// SurfacePoint returns the body-fixed position of a geodetic point on the
// spherical body. Latitude and longitude are in degrees, altitude in metres.
func (b Body) SurfacePoint(lat, lon, alt float64) Vec3 {
	sinLat, cosLat := math.Sincos(lat * deg)
	sinLon, cosLon := math.Sincos(lon * deg)
	r := b.Radius + alt
	return Vec3{
		X: r * cosLat * cosLon,
		Y: r * cosLat * sinLon,
		Z: r * sinLat,
	}
}

// TargetPosition returns the body-fixed position of t.
func (b Body) TargetPosition(t model.Target) Vec3 {
	return b.SurfacePoint(t.Latitude, t.Longitude, t.Altitude)
}

// SubPoint returns the geocentric latitude and longitude in degrees below
// a body-fixed position.
func SubPoint(p Vec3) (lat, lon float64) {
	lon = math.Atan2(p.Y, p.X) * rad
	lat = math.Atan2(p.Z, math.Hypot(p.X, p.Y)) * rad
	return lat, lon
}

// rotateByQuaternion applies the rotation q = (x, y, z, w) to v. q must be
// a unit quaternion.
func rotateByQuaternion(q model.Quaternion, v Vec3) Vec3 {
	u := Vec3{q[0], q[1], q[2]}
	w := q[3]
	// v' = v + 2w(u×v) + 2u×(u×v)
	uv := u.Cross(v)
	return v.Add(uv.Scale(2 * w)).Add(u.Cross(uv).Scale(2))
}

func conjugate(q model.Quaternion) model.Quaternion {
	return model.Quaternion{-q[0], -q[1], -q[2], q[3]}
}
