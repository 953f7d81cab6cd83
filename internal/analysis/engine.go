package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/coverage-analyzer/core"
	"github.com/signalsfoundry/coverage-analyzer/internal/logging"
	"github.com/signalsfoundry/coverage-analyzer/internal/observability"
	"github.com/signalsfoundry/coverage-analyzer/model"
	"github.com/signalsfoundry/coverage-analyzer/timectrl"
)

// ErrInvalidRequest marks request-level settings the engine cannot honour.
var ErrInvalidRequest = errors.New("invalid request")

// ErrTaskPanic wraps a panic recovered from a single per-entity task.
var ErrTaskPanic = errors.New("task panicked")

// MetricsRecorder receives run and stage measurements.
// *observability.AnalysisCollector satisfies it.
type MetricsRecorder interface {
	ObserveRun(operation, outcome string)
	ObserveStage(stage string, d time.Duration)
	IncEntityFailure(stage, kind string)
	AddAccessSamples(n int)
	SetCoverageFraction(f float64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRun(string, string)          {}
func (noopMetrics) ObserveStage(string, time.Duration) {}
func (noopMetrics) IncEntityFailure(string, string)    {}
func (noopMetrics) AddAccessSamples(int)               {}
func (noopMetrics) SetCoverageFraction(float64)        {}

// EphemerisSet maps satellite ids to their ephemeris.
type EphemerisSet map[string][]model.EphemerisSample

// Engine runs the analysis stages over a bounded worker pool. Engines hold
// configuration only and may be shared between concurrent runs.
type Engine struct {
	workers    int
	frame      model.ReferenceFrame
	propagator core.PropagatorKind
	step       time.Duration
	body       core.Body
	log        logging.Logger
	metrics    MetricsRecorder
}

// Option customises an Engine.
type Option func(*Engine)

// WithWorkers bounds the number of concurrent tasks. Values below one are
// treated as one.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithFrame sets the frame of produced ephemeris.
func WithFrame(f model.ReferenceFrame) Option {
	return func(e *Engine) {
		if f != "" {
			e.frame = f
		}
	}
}

// WithPropagator sets the default propagation backend.
func WithPropagator(k core.PropagatorKind) Option {
	return func(e *Engine) {
		if k != "" {
			e.propagator = k
		}
	}
}

// WithDefaultStep sets the grid step used when a request has none.
func WithDefaultStep(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.step = d
		}
	}
}

// WithBody overrides the reference body.
func WithBody(b core.Body) Option {
	return func(e *Engine) { e.body = b }
}

// WithLogger sets the base logger; every run derives a run-scoped child.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics wires a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewEngine returns an engine with one worker per CPU, ITRS output, the
// Kepler backend and a 10 s default step unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		workers:    runtime.NumCPU(),
		frame:      model.FrameITRS,
		propagator: core.PropagatorKepler,
		step:       10 * time.Second,
		body:       core.Earth,
		log:        logging.Noop(),
		metrics:    noopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

// DefaultStep returns the grid step applied to requests without one.
func (e *Engine) DefaultStep() time.Duration { return e.step }

// For returns a copy of the engine with the request's frame and propagator
// overrides applied.
func (e *Engine) For(req Request) (*Engine, error) {
	cp := *e
	if req.Frame != "" {
		f, err := model.ParseReferenceFrame(string(req.Frame))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		cp.frame = f
	}
	if req.Propagator != "" {
		k, err := core.ParsePropagatorKind(string(req.Propagator))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		cp.propagator = k
	}
	return &cp, nil
}

// IsInvalid reports whether err stems from rejected input rather than a
// failed computation.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, model.ErrInvalidOrbitState) ||
		errors.Is(err, model.ErrInvalidSensorGeometry) ||
		errors.Is(err, model.ErrInvalidTarget) ||
		errors.Is(err, model.ErrInvalidSatellite) ||
		errors.Is(err, timectrl.ErrInvalidTimeGrid)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return observability.OutcomeCanceled
	case IsInvalid(err):
		return observability.OutcomeInvalid
	default:
		return observability.OutcomeError
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, core.ErrPropagationDivergence):
		return "divergence"
	case errors.Is(err, core.ErrGeometryUndefined):
		return "geometry"
	case errors.Is(err, ErrTaskPanic):
		return "panic"
	default:
		return "other"
	}
}

// Propagate propagates every satellite over grid. Satellites whose
// propagation diverges are reported as failures and left out of the set.
func (e *Engine) Propagate(ctx context.Context, sats []model.Satellite, grid timectrl.TimeGrid) (EphemerisSet, []model.EntityFailure, error) {
	var (
		set      EphemerisSet
		failures []model.EntityFailure
	)
	err := e.track(ctx, "propagate", func(ctx context.Context) error {
		var err error
		set, failures, err = e.propagate(ctx, sats, grid)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return set, failures, nil
}

// ComputeAccess evaluates every (satellite, instrument, target) triple and
// returns one record per target with at least one evaluated triple, in
// target order.
func (e *Engine) ComputeAccess(ctx context.Context, eph EphemerisSet, sats []model.Satellite, targets []model.Target, c model.Constraints, grid timectrl.TimeGrid) ([]model.AccessRecord, []model.EntityFailure, error) {
	var (
		records  []model.AccessRecord
		failures []model.EntityFailure
	)
	err := e.track(ctx, "access", func(ctx context.Context) error {
		var err error
		records, failures, err = e.computeAccess(ctx, eph, sats, targets, c, grid)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return records, failures, nil
}

// ComputeCoverage aggregates access records over the given targets.
func (e *Engine) ComputeCoverage(ctx context.Context, targets []model.Target, records []model.AccessRecord, opts model.CoverageOptions) model.CoverageResponse {
	var out model.CoverageResponse
	_ = e.track(ctx, "coverage", func(ctx context.Context) error {
		out = e.computeCoverage(ctx, targets, records, opts)
		return nil
	})
	return out
}

// ComputeDataMetrics samples the observation geometry inside every access
// sample. Each record in the output matches the record at the same index.
func (e *Engine) ComputeDataMetrics(ctx context.Context, records []model.AccessRecord, eph EphemerisSet, targets []model.Target, grid timectrl.TimeGrid) ([]model.DataMetricsRecord, []model.EntityFailure, error) {
	var (
		out      []model.DataMetricsRecord
		failures []model.EntityFailure
	)
	err := e.track(ctx, "datametrics", func(ctx context.Context) error {
		var err error
		out, failures, err = e.computeDataMetrics(ctx, records, eph, targets, grid)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return out, failures, nil
}

// Run executes every stage of req. Input is validated before any work
// starts; a cancelled context yields ctx.Err() and no report.
func (e *Engine) Run(ctx context.Context, req Request) (Report, error) {
	var report Report
	err := e.track(ctx, "analyze", func(ctx context.Context) error {
		eng, err := e.For(req)
		if err != nil {
			return err
		}
		grid, err := req.Grid(eng.step)
		if err != nil {
			return err
		}
		sats, err := req.Fleet()
		if err != nil {
			return err
		}
		if err := ValidateTargets(req.Targets); err != nil {
			return err
		}

		set, failures, err := eng.propagate(ctx, sats, grid)
		if err != nil {
			return err
		}
		propagated := make([]model.Satellite, 0, len(set))
		for _, s := range sats {
			if _, ok := set[s.ID]; ok {
				propagated = append(propagated, s)
			}
		}

		records, accessFailures, err := eng.computeAccess(ctx, set, propagated, req.Targets, req.Constraints, grid)
		if err != nil {
			return err
		}
		failures = append(failures, accessFailures...)

		report = Report{
			RunID:      logging.RunIDFromContext(ctx),
			Start:      grid.Start,
			End:        grid.End(),
			Step:       model.Duration(grid.Step),
			Frame:      eng.frame,
			Propagator: eng.propagator,
			Access:     records,
			Coverage:   eng.computeCoverage(ctx, req.Targets, records, req.Coverage),
		}

		if req.DataMetrics {
			dm, dmFailures, err := eng.computeDataMetrics(ctx, records, set, req.Targets, grid)
			if err != nil {
				return err
			}
			report.DataMetrics = dm
			failures = append(failures, dmFailures...)
		}
		if req.IncludeEphemeris {
			report.Ephemeris = make([]model.Ephemeris, 0, len(propagated))
			for _, s := range propagated {
				report.Ephemeris = append(report.Ephemeris, model.Ephemeris{SatelliteID: s.ID, Samples: set[s.ID]})
			}
		}
		report.Failures = failures
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

// track wraps one public operation with a run id, a span, a log line and
// the run counter.
func (e *Engine) track(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, log, runID := logging.WithRunLogger(ctx, e.log, operation)
	ctx, span := observability.StartSpan(ctx, "analysis."+operation, attribute.String("run_id", runID))
	start := time.Now()

	err := fn(ctx)

	observability.EndSpan(span, err)
	outcome := outcomeOf(err)
	e.metrics.ObserveRun(operation, outcome)
	if err != nil {
		log.Warn(ctx, "analysis run failed", logging.String("outcome", outcome), logging.Err(err))
		return err
	}
	log.Info(ctx, "analysis run finished", logging.Duration("elapsed", time.Since(start)))
	return nil
}

func (e *Engine) propagateOptions() []core.PropagateOption {
	return []core.PropagateOption{core.WithPropagator(e.propagator), core.WithBody(e.body)}
}

func (e *Engine) propagate(ctx context.Context, sats []model.Satellite, grid timectrl.TimeGrid) (EphemerisSet, []model.EntityFailure, error) {
	if err := grid.Validate(); err != nil {
		return nil, nil, err
	}
	if err := ValidateSatellites(sats); err != nil {
		return nil, nil, err
	}
	opts := e.propagateOptions()
	// Reject orbits no backend can start from before any work is queued.
	for _, s := range sats {
		if _, _, err := core.NewStateFunc(s.Orbit, grid.Start, opts...); err != nil {
			return nil, nil, fmt.Errorf("satellite %s: %w", s.ID, err)
		}
	}

	ctx, span := observability.StartSpan(ctx, "analysis.stage.propagation", attribute.Int("satellites", len(sats)))
	start := time.Now()
	results := make([][]model.EphemerisSample, len(sats))
	failed := make([]*model.EntityFailure, len(sats))
	err := e.forEach(ctx, len(sats), func(i int) {
		s := sats[i]
		eph, err := core.Propagate(s.Orbit, grid, e.frame, opts...)
		if err != nil {
			failed[i] = &model.EntityFailure{Stage: model.StagePropagation, SatelliteID: s.ID, Err: err}
			return
		}
		results[i] = eph
	}, func(i int, err error) {
		failed[i] = &model.EntityFailure{Stage: model.StagePropagation, SatelliteID: sats[i].ID, Err: err}
	})
	observability.EndSpan(span, err)
	if err != nil {
		return nil, nil, err
	}
	e.metrics.ObserveStage(string(model.StagePropagation), time.Since(start))

	set := make(EphemerisSet, len(sats))
	for i, s := range sats {
		if results[i] != nil {
			set[s.ID] = results[i]
		}
	}
	return set, e.collectFailures(ctx, failed), nil
}

type triple struct {
	satelliteID string
	instrument  model.Instrument
	target      model.Target
}

func (e *Engine) computeAccess(ctx context.Context, eph EphemerisSet, sats []model.Satellite, targets []model.Target, c model.Constraints, grid timectrl.TimeGrid) ([]model.AccessRecord, []model.EntityFailure, error) {
	if err := grid.Validate(); err != nil {
		return nil, nil, err
	}
	if err := ValidateSatellites(sats); err != nil {
		return nil, nil, err
	}
	if err := ValidateTargets(targets); err != nil {
		return nil, nil, err
	}

	var (
		triples []triple
		missing []*model.EntityFailure
	)
	for _, s := range sats {
		if _, ok := eph[s.ID]; !ok {
			missing = append(missing, &model.EntityFailure{
				Stage:       model.StageAccess,
				SatelliteID: s.ID,
				Err:         fmt.Errorf("no ephemeris for satellite %q", s.ID),
			})
			continue
		}
		for _, in := range s.Instruments {
			for _, t := range targets {
				triples = append(triples, triple{satelliteID: s.ID, instrument: in, target: t})
			}
		}
	}

	ctx, span := observability.StartSpan(ctx, "analysis.stage.access", attribute.Int("triples", len(triples)))
	start := time.Now()
	ev := core.NewEvaluator(e.body)
	results := make([]*core.TripleAccess, len(triples))
	failed := make([]*model.EntityFailure, len(triples))
	err := e.forEach(ctx, len(triples), func(i int) {
		tr := triples[i]
		samples, err := ev.TripleAccessSamples(eph[tr.satelliteID], grid, tr.satelliteID, tr.instrument, tr.target, c)
		if err != nil {
			failed[i] = &model.EntityFailure{
				Stage:        model.StageAccess,
				SatelliteID:  tr.satelliteID,
				InstrumentID: tr.instrument.ID,
				TargetID:     tr.target.ID,
				Err:          err,
			}
			return
		}
		results[i] = &core.TripleAccess{TargetID: tr.target.ID, Samples: samples}
	}, func(i int, err error) {
		tr := triples[i]
		failed[i] = &model.EntityFailure{
			Stage:        model.StageAccess,
			SatelliteID:  tr.satelliteID,
			InstrumentID: tr.instrument.ID,
			TargetID:     tr.target.ID,
			Err:          err,
		}
	})
	observability.EndSpan(span, err)
	if err != nil {
		return nil, nil, err
	}
	e.metrics.ObserveStage(string(model.StageAccess), time.Since(start))

	merged := make([]core.TripleAccess, 0, len(results))
	produced := 0
	for _, r := range results {
		if r != nil {
			merged = append(merged, *r)
			produced += len(r.Samples)
		}
	}
	e.metrics.AddAccessSamples(produced)

	records := core.MergeAccessRecords(targetIDs(targets), merged)
	return records, e.collectFailures(ctx, append(missing, failed...)), nil
}

func (e *Engine) computeCoverage(ctx context.Context, targets []model.Target, records []model.AccessRecord, opts model.CoverageOptions) model.CoverageResponse {
	_, span := observability.StartSpan(ctx, "analysis.stage.coverage", attribute.Int("records", len(records)))
	start := time.Now()
	out := core.ComputeCoverage(targetIDs(targets), records, opts)
	span.End()
	e.metrics.ObserveStage("coverage", time.Since(start))
	e.metrics.SetCoverageFraction(out.CoverageFraction)
	return out
}

type sampleSlot struct {
	record, sample int
}

func (e *Engine) computeDataMetrics(ctx context.Context, records []model.AccessRecord, eph EphemerisSet, targets []model.Target, grid timectrl.TimeGrid) ([]model.DataMetricsRecord, []model.EntityFailure, error) {
	if err := grid.Validate(); err != nil {
		return nil, nil, err
	}
	if err := ValidateTargets(targets); err != nil {
		return nil, nil, err
	}

	var slots []sampleSlot
	for i, rec := range records {
		for j := range rec.Samples {
			slots = append(slots, sampleSlot{record: i, sample: j})
		}
	}

	ctx, span := observability.StartSpan(ctx, "analysis.stage.datametrics", attribute.Int("samples", len(slots)))
	start := time.Now()
	ev := core.NewEvaluator(e.body)
	byID := targetIndex(targets)
	results := make([][]model.DataMetricsSample, len(slots))
	slotFailures := make([][]model.EntityFailure, len(slots))
	err := e.forEach(ctx, len(slots), func(k int) {
		s := slots[k]
		rec := records[s.record]
		one := []model.AccessRecord{{TargetID: rec.TargetID, Samples: rec.Samples[s.sample : s.sample+1]}}
		out, failures := ev.ComputeDataMetrics(one, eph, byID, grid.Step)
		results[k] = out[0].Samples
		slotFailures[k] = failures
	}, func(k int, err error) {
		s := slots[k]
		smp := records[s.record].Samples[s.sample]
		slotFailures[k] = []model.EntityFailure{{
			Stage:        model.StageDataMetrics,
			SatelliteID:  smp.SatelliteID,
			InstrumentID: smp.InstrumentID,
			TargetID:     records[s.record].TargetID,
			Err:          err,
		}}
	})
	observability.EndSpan(span, err)
	if err != nil {
		return nil, nil, err
	}
	e.metrics.ObserveStage(string(model.StageDataMetrics), time.Since(start))

	out := make([]model.DataMetricsRecord, len(records))
	for i, rec := range records {
		out[i] = model.DataMetricsRecord{TargetID: rec.TargetID, Samples: []model.DataMetricsSample{}}
	}
	var failed []*model.EntityFailure
	for k, s := range slots {
		out[s.record].Samples = append(out[s.record].Samples, results[k]...)
		for i := range slotFailures[k] {
			failed = append(failed, &slotFailures[k][i])
		}
	}
	return out, e.collectFailures(ctx, failed), nil
}

// forEach runs fn for indices [0, n) on the worker pool. fn must only write
// to its own index. A panic in fn is recovered and handed to onPanic for
// that index wrapped in ErrTaskPanic. It returns ctx.Err() when the context
// ends before every task has run.
func (e *Engine) forEach(ctx context.Context, n int, fn func(i int), onPanic func(i int, err error)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			defer func() {
				if r := recover(); r != nil {
					onPanic(i, fmt.Errorf("%w: %v", ErrTaskPanic, r))
				}
			}()
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// collectFailures flattens the per-slot failures in slot order, logging
// and counting each one.
func (e *Engine) collectFailures(ctx context.Context, slots []*model.EntityFailure) []model.EntityFailure {
	log := logging.LoggerFromContext(ctx)
	if log == nil {
		log = e.log
	}
	var out []model.EntityFailure
	for _, f := range slots {
		if f == nil {
			continue
		}
		kind := failureKind(f.Err)
		e.metrics.IncEntityFailure(string(f.Stage), kind)
		log.Warn(ctx, "entity dropped",
			logging.String("stage", string(f.Stage)),
			logging.String("satellite_id", f.SatelliteID),
			logging.String("instrument_id", f.InstrumentID),
			logging.String("target_id", f.TargetID),
			logging.String("kind", kind),
			logging.Err(f.Err),
		)
		out = append(out, *f)
	}
	return out
}
