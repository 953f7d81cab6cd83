package model

import (
	"errors"
	"math"
	"testing"
)

func TestSensorGeometryValidate(t *testing.T) {
	valid := []SensorGeometry{
		CircularField(30),
		{Diameter: 10},
		RectangularField(20, 40),
	}
	for _, g := range valid {
		if err := g.Validate(); err != nil {
			t.Fatalf("%+v: unexpected error %v", g, err)
		}
	}

	invalid := []SensorGeometry{
		CircularField(0),
		CircularField(180),
		{Shape: ShapeCircular, Diameter: 30, AngleWidth: 10},
		{Shape: ShapeRectangular, AngleHeight: 10},
		{Shape: ShapeRectangular, AngleHeight: 10, AngleWidth: 10, Diameter: 5},
		{Shape: "ELLIPTICAL", Diameter: 10},
	}
	for _, g := range invalid {
		if err := g.Validate(); !errors.Is(err, ErrInvalidSensorGeometry) {
			t.Fatalf("%+v: expected ErrInvalidSensorGeometry, got %v", g, err)
		}
	}
}

func TestInstrumentOrientation(t *testing.T) {
	in := Instrument{ID: "cam", FieldOfView: CircularField(30)}
	q, err := in.SensorOrientation()
	if err != nil || q != IdentityQuaternion {
		t.Fatalf("default orientation = %v, %v", q, err)
	}

	in.Orientation = &Quaternion{0, 0, 2, 2}
	q, err = in.SensorOrientation()
	if err != nil {
		t.Fatalf("SensorOrientation: %v", err)
	}
	if math.Abs(q[2]-math.Sqrt2/2) > 1e-12 || math.Abs(q[3]-math.Sqrt2/2) > 1e-12 {
		t.Fatalf("orientation not normalised: %v", q)
	}

	in.Orientation = &Quaternion{}
	if err := in.Validate(); !errors.Is(err, ErrInvalidSensorGeometry) {
		t.Fatalf("expected zero quaternion to be rejected, got %v", err)
	}
}

func TestConstraintsResolvePrefersInstrument(t *testing.T) {
	yes, no := true, false
	req := Constraints{SatelliteSunlit: &yes}
	got := req.Resolve(Instrument{ReqSelfSunlit: &no, ReqTargetSunlit: &yes})
	if got.SatelliteSunlit == nil || *got.SatelliteSunlit {
		t.Fatalf("instrument satellite requirement not applied: %+v", got)
	}
	if got.TargetSunlit == nil || !*got.TargetSunlit {
		t.Fatalf("instrument target requirement not applied: %+v", got)
	}
	if got := req.Resolve(Instrument{}); got.SatelliteSunlit != &yes || got.TargetSunlit != nil {
		t.Fatalf("request constraints changed without overrides: %+v", got)
	}
}

func TestSatelliteValidate(t *testing.T) {
	sat := Satellite{
		ID:    "sat-1",
		Orbit: CircularOrbit{Altitude: 500e3},
		Instruments: []Instrument{
			{ID: "a", FieldOfView: CircularField(30)},
			{ID: "a", FieldOfView: CircularField(10)},
		},
	}
	if err := sat.Validate(); !errors.Is(err, ErrInvalidSatellite) {
		t.Fatalf("expected duplicate instrument rejection, got %v", err)
	}
	sat.Instruments = sat.Instruments[:1]
	if err := sat.Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := (Satellite{ID: "x"}).Validate(); !errors.Is(err, ErrInvalidSatellite) {
		t.Fatalf("expected missing orbit rejection, got %v", err)
	}
}

func TestTargetValidate(t *testing.T) {
	if err := (Target{ID: "t", Latitude: 45, Longitude: -120}).Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	bad := []Target{
		{ID: "t", Latitude: 91},
		{ID: "t", Longitude: 181},
		{ID: "t", CRS: "EPSG:3857"},
		{Latitude: 0},
	}
	for _, tg := range bad {
		if err := tg.Validate(); !errors.Is(err, ErrInvalidTarget) {
			t.Fatalf("%+v: expected ErrInvalidTarget, got %v", tg, err)
		}
	}
}
