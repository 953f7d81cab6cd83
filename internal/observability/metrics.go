package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes used for the analysis_runs_total outcome label.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeCanceled = "canceled"
	OutcomeError    = "error"
)

// AnalysisCollector bundles Prometheus metrics for analysis runs and exposes
// them through a /metrics handler.
type AnalysisCollector struct {
	gatherer prometheus.Gatherer

	Runs             *prometheus.CounterVec
	StageDurations   *prometheus.HistogramVec
	EntityFailures   *prometheus.CounterVec
	AccessSamples    prometheus.Counter
	CoverageFraction prometheus.Gauge
}

// NewAnalysisCollector registers analysis metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewAnalysisCollector(reg prometheus.Registerer) (*AnalysisCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_runs_total",
		Help: "Total number of analysis runs, labeled by operation and outcome.",
	}, []string{"operation", "outcome"}), "analysis_runs_total")
	if err != nil {
		return nil, err
	}

	stages, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analysis_stage_duration_seconds",
		Help:    "Wall time of each analysis stage in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"stage"}), "analysis_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_entity_failures_total",
		Help: "Entities dropped from a run, labeled by stage and failure kind.",
	}, []string{"stage", "kind"}), "analysis_entity_failures_total")
	if err != nil {
		return nil, err
	}

	samples, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_access_samples_total",
		Help: "Total number of access samples produced.",
	}), "analysis_access_samples_total")
	if err != nil {
		return nil, err
	}

	fraction, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "analysis_coverage_fraction",
		Help: "Coverage fraction of the most recent coverage run.",
	}), "analysis_coverage_fraction")
	if err != nil {
		return nil, err
	}

	return &AnalysisCollector{
		gatherer:         gatherer,
		Runs:             runs,
		StageDurations:   stages,
		EntityFailures:   failures,
		AccessSamples:    samples,
		CoverageFraction: fraction,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *AnalysisCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *AnalysisCollector) Handler() http.Handler {
	var gatherer prometheus.Gatherer
	if c != nil {
		gatherer = c.gatherer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRun counts one finished run.
func (c *AnalysisCollector) ObserveRun(operation, outcome string) {
	if c == nil || c.Runs == nil {
		return
	}
	c.Runs.WithLabelValues(operation, outcome).Inc()
}

// ObserveStage records the wall time of one stage.
func (c *AnalysisCollector) ObserveStage(stage string, d time.Duration) {
	if c == nil || c.StageDurations == nil {
		return
	}
	c.StageDurations.WithLabelValues(stage).Observe(d.Seconds())
}

// IncEntityFailure counts one dropped entity.
func (c *AnalysisCollector) IncEntityFailure(stage, kind string) {
	if c == nil || c.EntityFailures == nil {
		return
	}
	c.EntityFailures.WithLabelValues(stage, kind).Inc()
}

// AddAccessSamples adds n produced access samples.
func (c *AnalysisCollector) AddAccessSamples(n int) {
	if c == nil || c.AccessSamples == nil || n <= 0 {
		return
	}
	c.AccessSamples.Add(float64(n))
}

// SetCoverageFraction records the latest coverage fraction, clamped to [0, 1].
func (c *AnalysisCollector) SetCoverageFraction(f float64) {
	if c == nil || c.CoverageFraction == nil {
		return
	}
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	c.CoverageFraction.Set(f)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
