package core

import (
	"fmt"
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/coverage-analyzer/model"
	"github.com/signalsfoundry/coverage-analyzer/tle"
)

const kmToM = 1000.0

// sgp4StateFunc builds an SGP4 propagator. TLE orbits use their own lines;
// every other variant is first encoded as an element set at its epoch.
// Elapsed time is measured from el.Epoch.
func sgp4StateFunc(o model.OrbitState, el Elements, b Body) (StateFunc, error) {
	var line1, line2 string
	if t, ok := o.(model.TwoLineElements); ok {
		line1, line2 = t.Line1, t.Line2
	} else {
		var err error
		line1, line2, err = tle.Format(tle.Elements{
			Epoch:        el.Epoch,
			Inclination:  el.Inclination * rad,
			RAAN:         el.RAAN * rad,
			Eccentricity: el.Eccentricity,
			ArgPerigee:   el.ArgPerigee * rad,
			MeanAnomaly:  el.MeanAnomaly * rad,
			MeanMotion:   el.MeanMotion(b) * 86400 / (2 * math.Pi),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrInvalidOrbitState, err)
		}
	}

	// go-satellite exits the process on malformed lines, so they are
	// always checked first.
	if err := tle.Validate(line1, line2); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidOrbitState, err)
	}
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: sgp4 init failed: code=%d %s", ErrPropagationDivergence, sat.Error, sat.ErrorStr)
	}

	epoch := el.Epoch
	return func(elapsed time.Duration) (Vec3, Vec3, error) {
		at := epoch.Add(elapsed).UTC()
		whole := at.Truncate(time.Second)
		frac := at.Sub(whole).Seconds()

		year, month, day := whole.Date()
		hour, minute, sec := whole.Clock()
		pos, vel := satellite.Propagate(sat, year, int(month), day, hour, minute, sec)

		// Propagate only takes whole seconds; the remainder is applied along
		// the velocity.
		r := Vec3{pos.X, pos.Y, pos.Z}.Scale(kmToM)
		v := Vec3{vel.X, vel.Y, vel.Z}.Scale(kmToM)
		if frac != 0 {
			r = r.Add(v.Scale(frac))
		}
		return r, v, nil
	}, nil
}
