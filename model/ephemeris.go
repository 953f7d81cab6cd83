package model

import (
	"fmt"
	"strings"
	"time"
)

// ReferenceFrame names the Cartesian frame of an ephemeris.
type ReferenceFrame string

const (
	// FrameITRS is Earth fixed.
	FrameITRS ReferenceFrame = "ITRS"
	// FrameICRF is inertial, realised as the true-of-date frame the
	// propagators emit.
	FrameICRF ReferenceFrame = "ICRF"
)

// ParseReferenceFrame accepts frame names case-insensitively.
func ParseReferenceFrame(s string) (ReferenceFrame, error) {
	switch f := ReferenceFrame(strings.ToUpper(strings.TrimSpace(s))); f {
	case FrameITRS, FrameICRF:
		return f, nil
	default:
		return "", fmt.Errorf("unknown reference frame %q", s)
	}
}

// EphemerisSample is a satellite state at one grid instant. Position is in
// metres and velocity in metres per second.
type EphemerisSample struct {
	Time     time.Time      `json:"time"`
	Position [3]float64     `json:"position"`
	Velocity [3]float64     `json:"velocity"`
	Frame    ReferenceFrame `json:"frame"`
}

// Ephemeris is the ordered state series of one satellite.
type Ephemeris struct {
	SatelliteID string            `json:"satellite_id"`
	Samples     []EphemerisSample `json:"samples"`
}
