package model

import "time"

// AccessSample is one contiguous interval during which a target lies in an
// instrument's field.
type AccessSample struct {
	SatelliteID  string        `json:"satellite_id"`
	InstrumentID string        `json:"instrument_id"`
	Start        time.Time     `json:"start"`
	Duration     time.Duration `json:"duration"`
}

// End returns Start + Duration.
func (s AccessSample) End() time.Time { return s.Start.Add(s.Duration) }

// AccessRecord holds every access sample of one target, ordered by start
// time, then satellite id, then instrument id.
type AccessRecord struct {
	TargetID string         `json:"target_id"`
	Samples  []AccessSample `json:"samples"`
}
