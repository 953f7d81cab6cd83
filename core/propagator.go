package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/coverage-analyzer/model"
	"github.com/signalsfoundry/coverage-analyzer/timectrl"
)

// DefaultDivergenceEccentricity bounds the osculating eccentricity of
// circular and sun-synchronous orbits.
const DefaultDivergenceEccentricity = 0.05

// StateFunc returns the inertial position (m) and velocity (m/s) at an
// elapsed time from the orbit epoch.
type StateFunc func(elapsed time.Duration) (Vec3, Vec3, error)

// PropagatorKind selects the StateFunc backend.
type PropagatorKind string

const (
	PropagatorKepler PropagatorKind = "kepler"
	PropagatorJ2     PropagatorKind = "j2"
	PropagatorSGP4   PropagatorKind = "sgp4"
)

// ParsePropagatorKind accepts backend names case-insensitively.
func ParsePropagatorKind(s string) (PropagatorKind, error) {
	switch k := PropagatorKind(strings.ToLower(strings.TrimSpace(s))); k {
	case PropagatorKepler, PropagatorJ2, PropagatorSGP4:
		return k, nil
	default:
		return "", fmt.Errorf("unknown propagator %q", s)
	}
}

type propagateConfig struct {
	kind                   PropagatorKind
	body                   Body
	divergenceEccentricity float64
}

// PropagateOption customises Propagate.
type PropagateOption func(*propagateConfig)

// WithPropagator selects the backend. The default is PropagatorKepler.
func WithPropagator(kind PropagatorKind) PropagateOption {
	return func(c *propagateConfig) {
		if kind != "" {
			c.kind = kind
		}
	}
}

// WithBody overrides the reference body.
func WithBody(b Body) PropagateOption {
	return func(c *propagateConfig) { c.body = b }
}

// WithDivergenceEccentricity overrides DefaultDivergenceEccentricity.
func WithDivergenceEccentricity(e float64) PropagateOption {
	return func(c *propagateConfig) {
		if e > 0 {
			c.divergenceEccentricity = e
		}
	}
}

func newPropagateConfig(opts []PropagateOption) propagateConfig {
	cfg := propagateConfig{
		kind:                   PropagatorKepler,
		body:                   Earth,
		divergenceEccentricity: DefaultDivergenceEccentricity,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewStateFunc reduces o to elements and builds the selected backend. The
// returned elements carry the resolved epoch.
func NewStateFunc(o model.OrbitState, defaultEpoch time.Time, opts ...PropagateOption) (StateFunc, Elements, error) {
	cfg := newPropagateConfig(opts)
	el, err := ElementsOf(o, defaultEpoch, cfg.body)
	if err != nil {
		return nil, Elements{}, err
	}
	switch cfg.kind {
	case PropagatorKepler:
		return keplerStateFunc(el, cfg.body, false), el, nil
	case PropagatorJ2:
		return keplerStateFunc(el, cfg.body, true), el, nil
	case PropagatorSGP4:
		fn, err := sgp4StateFunc(o, el, cfg.body)
		return fn, el, err
	default:
		return nil, Elements{}, fmt.Errorf("unknown propagator %q", cfg.kind)
	}
}

// Propagate produces one ephemeris sample per grid instant in the given
// frame. Any sample failing the divergence checks fails the whole call
// with ErrPropagationDivergence.
func Propagate(o model.OrbitState, grid timectrl.TimeGrid, frame model.ReferenceFrame, opts ...PropagateOption) ([]model.EphemerisSample, error) {
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidOrbitState, err)
	}
	if frame != model.FrameITRS && frame != model.FrameICRF {
		return nil, fmt.Errorf("unknown reference frame %q", frame)
	}
	cfg := newPropagateConfig(opts)
	state, el, err := NewStateFunc(o, grid.Start, opts...)
	if err != nil {
		return nil, err
	}
	checkEcc := o.Kind() == model.OrbitCircular || o.Kind() == model.OrbitSunSynchronous

	out := make([]model.EphemerisSample, grid.Len())
	for i := range out {
		t := grid.At(i)
		r, v, err := state(t.Sub(el.Epoch))
		if err != nil {
			return nil, fmt.Errorf("at %s: %w", t.Format(time.RFC3339), err)
		}
		if err := checkDivergence(r, v, cfg, checkEcc); err != nil {
			return nil, fmt.Errorf("at %s: %w", t.Format(time.RFC3339), err)
		}
		if frame == model.FrameITRS {
			r, v = cfg.body.InertialToFixed(t, r, v)
		}
		out[i] = model.EphemerisSample{
			Time:     t,
			Position: r.Array(),
			Velocity: v.Array(),
			Frame:    frame,
		}
	}
	return out, nil
}

func checkDivergence(r, v Vec3, cfg propagateConfig, checkEcc bool) error {
	if !r.finite() || !v.finite() {
		return fmt.Errorf("%w: non-finite state", ErrPropagationDivergence)
	}
	if rn := r.Norm(); rn < cfg.body.Radius {
		return fmt.Errorf("%w: radius %.0f m is below the body surface", ErrPropagationDivergence, rn)
	}
	if checkEcc {
		if e := osculatingEccentricity(r, v, cfg.body.Mu); e > cfg.divergenceEccentricity {
			return fmt.Errorf("%w: osculating eccentricity %.4f exceeds %.4f for a circular orbit",
				ErrPropagationDivergence, e, cfg.divergenceEccentricity)
		}
	}
	return nil
}
