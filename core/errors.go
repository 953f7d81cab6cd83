package core

import "errors"

var (
	// ErrPropagationDivergence indicates numerically implausible states.
	ErrPropagationDivergence = errors.New("propagation divergence")
	// ErrGeometryUndefined indicates a degenerate observation geometry.
	ErrGeometryUndefined = errors.New("geometry undefined")
)
