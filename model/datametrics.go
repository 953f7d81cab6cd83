package model

import "time"

// InstantaneousMetric is the observation geometry at one instant.
// Angles are in degrees and Range in kilometres.
type InstantaneousMetric struct {
	Time           time.Time `json:"time"`
	IncidenceAngle float64   `json:"incidence_angle"`
	LookAngle      float64   `json:"look_angle"`
	Range          float64   `json:"range"`
	SolarZenith    float64   `json:"solar_zenith"`
}

// DataMetricsSample carries the metrics sampled inside one access sample.
type DataMetricsSample struct {
	AccessSample
	Metrics []InstantaneousMetric `json:"metrics"`
}

// DataMetricsRecord groups data-metrics samples by target.
type DataMetricsRecord struct {
	TargetID string              `json:"target_id"`
	Samples  []DataMetricsSample `json:"samples"`
}
