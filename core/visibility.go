package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/coverage-analyzer/model"
)

// minRange is the slant range below which observation angles are undefined.
const minRange = 1e-3 // metres

// Geometry is the observation geometry of a target from a satellite.
// Angles are in degrees; Range is in kilometres.
type Geometry struct {
	IncidenceAngle float64
	LookAngle      float64
	Range          float64
	SolarZenith    float64
}

// Visibility is the outcome of one access test.
type Visibility struct {
	Visible bool
	// InField reports the field-of-view test alone, before occlusion and
	// sunlit gates.
	InField         bool
	Occluded        bool
	SatelliteSunlit bool
	TargetSunlit    bool
	Geometry        Geometry
}

// Evaluator tests targets against sensor fields on a spherical body.
type Evaluator struct {
	Body Body
}

// NewEvaluator returns an evaluator for the given body.
func NewEvaluator(b Body) *Evaluator {
	return &Evaluator{Body: b}
}

// observation holds the intermediate vectors shared by Evaluate and
// Geometry.
type observation struct {
	satFixed, velFixed Vec3
	satInertial        Vec3
	target             Vec3
	los                Vec3 // satellite to target, body-fixed
	geometry           Geometry
}

func (e *Evaluator) observe(sample model.EphemerisSample, target model.Target) (observation, error) {
	rF, vF, err := e.Body.inFrame(sample, model.FrameITRS)
	if err != nil {
		return observation{}, err
	}
	rI, vI, err := e.Body.inFrame(sample, model.FrameICRF)
	if err != nil {
		return observation{}, err
	}

	tgt := e.Body.TargetPosition(target)
	los := tgt.Sub(rF)
	rng := los.Norm()
	if rng < minRange || math.IsNaN(rng) {
		return observation{}, fmt.Errorf("%w: satellite within %.3f m of target %s", ErrGeometryUndefined, rng, target.ID)
	}

	rs, rt := rF.Norm(), tgt.Norm()
	// Law of cosines in the triangle centre / satellite / target.
	look := math.Acos(clampUnit((rs*rs+rng*rng-rt*rt)/(2*rs*rng))) * rad
	atTarget := math.Acos(clampUnit((rt*rt+rng*rng-rs*rs)/(2*rt*rng))) * rad

	// Sign the look angle by the side of the orbit plane, in inertial axes.
	losI := rotateZ(tgt, GMST(sample.Time)).Sub(rI)
	if losI.Dot(rI.Cross(vI)) < 0 {
		look = -look
	}

	return observation{
		satFixed:    rF,
		velFixed:    vF,
		satInertial: rI,
		target:      tgt,
		los:         los,
		geometry: Geometry{
			IncidenceAngle: 180 - atTarget,
			LookAngle:      look,
			Range:          rng / 1000,
			SolarZenith:    SolarZenith(sample.Time, tgt),
		},
	}, nil
}

// Geometry computes the observation geometry without any visibility test.
func (e *Evaluator) Geometry(sample model.EphemerisSample, target model.Target) (Geometry, error) {
	obs, err := e.observe(sample, target)
	if err != nil {
		return Geometry{}, err
	}
	return obs.geometry, nil
}

// Evaluate decides whether target is visible to instrument at the sample
// instant. Constraints are resolved against the instrument's own sunlit
// requirements before gating.
func (e *Evaluator) Evaluate(sample model.EphemerisSample, target model.Target, in model.Instrument, c model.Constraints) (Visibility, error) {
	q, err := in.SensorOrientation()
	if err != nil {
		return Visibility{}, err
	}
	obs, err := e.observe(sample, target)
	if err != nil {
		return Visibility{}, err
	}

	// Nadir-geocentric body frame.
	z := obs.satFixed.Scale(-1).Unit()
	zv := z.Cross(obs.velFixed)
	if zv.Norm() == 0 {
		return Visibility{}, fmt.Errorf("%w: velocity parallel to nadir", ErrGeometryUndefined)
	}
	x := zv.Unit().Scale(-1)
	y := z.Cross(x)
	losBody := Vec3{X: obs.los.Dot(x), Y: obs.los.Dot(y), Z: obs.los.Dot(z)}
	losSensor := rotateByQuaternion(conjugate(q), losBody)

	vis := Visibility{
		InField:         InField(in.AccessField(), losSensor),
		Occluded:        ElevationDegrees(obs.target, obs.satFixed) < 0,
		SatelliteSunlit: e.Body.IsSunlit(sample.Time, obs.satInertial),
		TargetSunlit:    obs.geometry.SolarZenith < 90,
		Geometry:        obs.geometry,
	}

	req := c.Resolve(in)
	vis.Visible = vis.InField && !vis.Occluded
	if req.SatelliteSunlit != nil && *req.SatelliteSunlit != vis.SatelliteSunlit {
		vis.Visible = false
	}
	if req.TargetSunlit != nil && *req.TargetSunlit != vis.TargetSunlit {
		vis.Visible = false
	}
	return vis, nil
}

// InField tests a sensor-frame line of sight against a field geometry. The
// boresight is the sensor +Z axis. Rectangular bounds are tested
// independently about X and Y.
func InField(g model.SensorGeometry, los Vec3) bool {
	if los.Z <= 0 {
		return false
	}
	switch g.Shape {
	case model.ShapeRectangular:
		aboutX := math.Abs(math.Atan2(los.Y, los.Z)) * rad
		aboutY := math.Abs(math.Atan2(los.X, los.Z)) * rad
		return aboutX <= g.AngleHeight/2 && aboutY <= g.AngleWidth/2
	default:
		return angleBetween(los, Vec3{Z: 1})*rad <= g.Diameter/2
	}
}
