package model

import "time"

// CoverageSample is an access sample annotated with the time since the
// start of the previous sample for the same target. Revisit is nil for the
// first sample.
type CoverageSample struct {
	AccessSample
	Revisit *time.Duration `json:"revisit,omitempty"`
}

// CoverageRecord summarises the access samples of one target.
type CoverageRecord struct {
	TargetID      string           `json:"target_id"`
	Samples       []CoverageSample `json:"samples"`
	MeanRevisit   *time.Duration   `json:"mean_revisit,omitempty"`
	NumberSamples int              `json:"number_samples"`
}

// CoverageResponse is the per-target records plus corpus statistics.
type CoverageResponse struct {
	Records             []CoverageRecord `json:"records"`
	HarmonicMeanRevisit *time.Duration   `json:"harmonic_mean_revisit,omitempty"`
	CoverageFraction    float64          `json:"coverage_fraction"`
}

// CoverageOptions filters which samples count toward coverage.
type CoverageOptions struct {
	OmitSatelliteIDs  []string `json:"omit_satellite_ids,omitempty"`
	OmitInstrumentIDs []string `json:"omit_instrument_ids,omitempty"`
}
