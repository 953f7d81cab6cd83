package model

import (
	"fmt"
	"math"
)

// CRSWGS84 is the only coordinate reference system targets may use.
const CRSWGS84 = "EPSG:4326"

// Target is a fixed point on or above the surface of the reference body.
// Longitude and latitude are in degrees, altitude in metres.
type Target struct {
	ID        string  `json:"id"`
	CRS       string  `json:"crs,omitempty"`
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Altitude  float64 `json:"altitude,omitempty"`
}

// Validate checks the coordinate bounds. An empty CRS means CRSWGS84.
func (t Target) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: target id is required", ErrInvalidTarget)
	}
	if t.CRS != "" && t.CRS != CRSWGS84 {
		return fmt.Errorf("%w: target %s uses unsupported crs %q", ErrInvalidTarget, t.ID, t.CRS)
	}
	if math.IsNaN(t.Latitude) || t.Latitude < -90 || t.Latitude > 90 {
		return fmt.Errorf("%w: target %s latitude %g must be in [-90,90]", ErrInvalidTarget, t.ID, t.Latitude)
	}
	if math.IsNaN(t.Longitude) || t.Longitude < -180 || t.Longitude > 180 {
		return fmt.Errorf("%w: target %s longitude %g must be in [-180,180]", ErrInvalidTarget, t.ID, t.Longitude)
	}
	if math.IsNaN(t.Altitude) || math.IsInf(t.Altitude, 0) || t.Altitude <= -EarthRadius {
		return fmt.Errorf("%w: target %s altitude %g is not above the body centre", ErrInvalidTarget, t.ID, t.Altitude)
	}
	return nil
}
