package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/signalsfoundry/coverage-analyzer/internal/analysis"
	"github.com/signalsfoundry/coverage-analyzer/kb"
)

// Summary lists what a scenario contributed to a catalog.
type Summary struct {
	SatelliteIDs []string
	TargetIDs    []string
}

// Load decodes one analysis request from r and validates its fleet and
// targets. Unknown fields are rejected so typos do not silently fall back
// to defaults.
func Load(r io.Reader) (analysis.Request, error) {
	var req analysis.Request
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return analysis.Request{}, fmt.Errorf("scenario: decode failed: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return analysis.Request{}, fmt.Errorf("scenario: trailing data after the scenario object")
	}
	if _, err := req.Fleet(); err != nil {
		return analysis.Request{}, fmt.Errorf("scenario: %w", err)
	}
	if err := analysis.ValidateTargets(req.Targets); err != nil {
		return analysis.Request{}, fmt.Errorf("scenario: %w", err)
	}
	return req, nil
}

// LoadFile opens path and calls Load.
func LoadFile(path string) (analysis.Request, error) {
	f, err := os.Open(path)
	if err != nil {
		return analysis.Request{}, fmt.Errorf("scenario: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Populate adds the scenario's satellites, with constellations expanded,
// and its targets to the catalog. Satellites are added as one batch; targets
// stop at the first rejected one.
func Populate(cat *kb.Catalog, req analysis.Request) (*Summary, error) {
	if cat == nil {
		return nil, fmt.Errorf("scenario: catalog is nil")
	}
	fleet, err := req.Fleet()
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}

	out := &Summary{
		SatelliteIDs: make([]string, 0, len(fleet)),
		TargetIDs:    make([]string, 0, len(req.Targets)),
	}
	if err := cat.AddSatellites(fleet); err != nil {
		return out, fmt.Errorf("scenario: %w", err)
	}
	for _, s := range fleet {
		out.SatelliteIDs = append(out.SatelliteIDs, s.ID)
	}
	for _, t := range req.Targets {
		if err := cat.AddTarget(t); err != nil {
			return out, fmt.Errorf("scenario: %w", err)
		}
		out.TargetIDs = append(out.TargetIDs, t.ID)
	}
	return out, nil
}
