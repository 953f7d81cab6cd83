// Package timectrl defines the sampling grid that drives an analysis run.
package timectrl

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTimeGrid is returned when a grid cannot produce samples.
var ErrInvalidTimeGrid = errors.New("invalid time grid")

// MaxInstants bounds the number of instants a grid may hold. Every stage
// allocates per-instant buffers, so larger grids are rejected up front.
const MaxInstants = 2_000_000

// TimeGrid is the ordered set of sample instants over an analysis horizon.
// Instants are Start + k*Step for k < ceil(Duration/Step), followed by the
// final instant Start + Duration. The last step may therefore be shorter.
type TimeGrid struct {
	Start    time.Time
	Duration time.Duration
	Step     time.Duration
}

// NewTimeGrid constructs a validated grid.
func NewTimeGrid(start time.Time, duration, step time.Duration) (TimeGrid, error) {
	g := TimeGrid{Start: start, Duration: duration, Step: step}
	if err := g.Validate(); err != nil {
		return TimeGrid{}, err
	}
	return g, nil
}

// Validate reports whether the grid yields at least one instant.
func (g TimeGrid) Validate() error {
	if g.Step <= 0 {
		return fmt.Errorf("%w: step %v must be positive", ErrInvalidTimeGrid, g.Step)
	}
	if g.Duration < 0 {
		return fmt.Errorf("%w: duration %v must not be negative", ErrInvalidTimeGrid, g.Duration)
	}
	if g.Start.IsZero() {
		return fmt.Errorf("%w: start time is unset", ErrInvalidTimeGrid)
	}
	if g.Duration/g.Step >= MaxInstants || g.Len() > MaxInstants {
		return fmt.Errorf("%w: duration %v at step %v exceeds %d instants", ErrInvalidTimeGrid, g.Duration, g.Step, MaxInstants)
	}
	return nil
}

// steps returns ceil(Duration/Step).
func (g TimeGrid) steps() int {
	n := g.Duration / g.Step
	if g.Duration%g.Step != 0 {
		n++
	}
	return int(n)
}

// Len returns the number of instants, ceil(Duration/Step)+1.
func (g TimeGrid) Len() int {
	return g.steps() + 1
}

// End returns the final instant.
func (g TimeGrid) End() time.Time {
	return g.Start.Add(g.Duration)
}

// At returns instant i. It panics when i is out of range.
func (g TimeGrid) At(i int) time.Time {
	n := g.steps()
	switch {
	case i < 0 || i > n:
		panic(fmt.Sprintf("timectrl: instant %d out of range [0,%d]", i, n))
	case i == n:
		return g.End()
	default:
		return g.Start.Add(time.Duration(i) * g.Step)
	}
}

// Instants materialises every instant of the grid.
func (g TimeGrid) Instants() []time.Time {
	out := make([]time.Time, g.Len())
	for i := range out {
		out[i] = g.At(i)
	}
	return out
}

// StepAt returns the spacing between instant i and i+1. For the last
// instant it returns the nominal step.
func (g TimeGrid) StepAt(i int) time.Duration {
	if i+1 >= g.Len() {
		return g.Step
	}
	return g.At(i + 1).Sub(g.At(i))
}

// Index returns the position of t in the grid, or false when t is not one
// of its instants.
func (g TimeGrid) Index(t time.Time) (int, bool) {
	if t.Before(g.Start) || t.After(g.End()) {
		return 0, false
	}
	if t.Equal(g.End()) {
		return g.steps(), true
	}
	off := t.Sub(g.Start)
	if off%g.Step != 0 {
		return 0, false
	}
	return int(off / g.Step), true
}
