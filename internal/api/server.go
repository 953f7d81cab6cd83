package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/signalsfoundry/coverage-analyzer/internal/analysis"
	"github.com/signalsfoundry/coverage-analyzer/internal/logging"
	"github.com/signalsfoundry/coverage-analyzer/internal/observability"
	"github.com/signalsfoundry/coverage-analyzer/kb"
	"github.com/signalsfoundry/coverage-analyzer/model"
	"github.com/signalsfoundry/coverage-analyzer/timectrl"
	"github.com/signalsfoundry/coverage-analyzer/tle"
)

// RequestIDHeader carries the request id in and out of the server.
const RequestIDHeader = "X-Request-ID"

// Options wires a Server. Engine and Catalog are required.
type Options struct {
	Engine         *analysis.Engine
	Catalog        *kb.Catalog
	Logger         logging.Logger
	HTTPMetrics    *observability.HTTPCollector
	MetricsHandler http.Handler
	RequestTimeout time.Duration
	ServiceName    string
}

// Server is the JSON surface over the analysis engine and the catalog.
type Server struct {
	engine  *analysis.Engine
	catalog *kb.Catalog
	log     logging.Logger
	opts    Options
}

// NewServer validates opts and returns a server.
func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("api: engine is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("api: catalog is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Noop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "coverage-analyzer"
	}
	return &Server{engine: opts.Engine, catalog: opts.Catalog, log: opts.Logger, opts: opts}, nil
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(s.opts.ServiceName))
	r.Use(s.requestContext())
	if s.opts.HTTPMetrics != nil {
		r.Use(s.opts.HTTPMetrics.Middleware())
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
	if s.opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(s.opts.MetricsHandler))
	}

	v1 := r.Group("/v1")
	v1.POST("/propagate", s.handlePropagate)
	v1.POST("/access", s.handleAccess)
	v1.POST("/coverage", s.handleCoverage)
	v1.POST("/datametrics", s.handleDataMetrics)
	v1.POST("/analyze", s.handleAnalyze)
	v1.POST("/tle/validate", s.handleValidateTLE)

	v1.POST("/satellites", s.handleAddSatellite)
	v1.GET("/satellites", s.handleListSatellites)
	v1.GET("/satellites/:id", s.handleGetSatellite)
	v1.DELETE("/satellites/:id", s.handleRemoveSatellite)
	v1.POST("/constellations", s.handleAddConstellation)
	v1.POST("/targets", s.handleAddTarget)
	v1.GET("/targets", s.handleListTargets)
	v1.GET("/targets/:id", s.handleGetTarget)
	v1.DELETE("/targets/:id", s.handleRemoveTarget)
	return r
}

// requestContext attaches a request id, echoing X-Request-ID when the
// client sent one, and a request-scoped logger.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(RequestIDHeader); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, log := logging.WithRequestLogger(ctx, s.log)
		ctx = logging.ContextWithLogger(ctx, log)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, logging.RequestIDFromContext(ctx))

		start := time.Now()
		c.Next()
		log.Debug(ctx, "http request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Server) withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
}

// analysisRequest is an analysis.Request that may also reference catalog
// entries by id.
type analysisRequest struct {
	analysis.Request
	SatelliteIDs []string             `json:"satellite_ids,omitempty"`
	TargetIDs    []string             `json:"target_ids,omitempty"`
	Records      []model.AccessRecord `json:"records,omitempty"`
}

// bind decodes the body and resolves catalog references into the request.
func (s *Server) bind(c *gin.Context) (analysisRequest, error) {
	var in analysisRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		return analysisRequest{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	sats, err := s.catalog.ResolveSatellites(in.SatelliteIDs)
	if err != nil {
		return analysisRequest{}, err
	}
	targets, err := s.catalog.ResolveTargets(in.TargetIDs)
	if err != nil {
		return analysisRequest{}, err
	}
	in.Satellites = append(in.Satellites, sats...)
	in.Targets = append(in.Targets, targets...)
	return in, nil
}

type propagateResponse struct {
	Ephemeris []model.Ephemeris     `json:"ephemeris"`
	Failures  []model.EntityFailure `json:"failures,omitempty"`
}

type accessResponse struct {
	Records  []model.AccessRecord  `json:"records"`
	Failures []model.EntityFailure `json:"failures,omitempty"`
}

type dataMetricsResponse struct {
	Records  []model.DataMetricsRecord `json:"records"`
	Failures []model.EntityFailure     `json:"failures,omitempty"`
}

// prepared is the engine, fleet and ephemeris shared by the stage handlers.
type prepared struct {
	engine   *analysis.Engine
	fleet    []model.Satellite
	grid     timectrl.TimeGrid
	eph      analysis.EphemerisSet
	failures []model.EntityFailure
}

func (s *Server) propagateRequest(ctx context.Context, in analysisRequest) (prepared, error) {
	eng, err := s.engine.For(in.Request)
	if err != nil {
		return prepared{}, err
	}
	grid, err := in.Grid(eng.DefaultStep())
	if err != nil {
		return prepared{}, err
	}
	fleet, err := in.Fleet()
	if err != nil {
		return prepared{}, err
	}
	if err := analysis.ValidateTargets(in.Targets); err != nil {
		return prepared{}, err
	}
	set, failures, err := eng.Propagate(ctx, fleet, grid)
	if err != nil {
		return prepared{}, err
	}
	return prepared{engine: eng, fleet: fleet, grid: grid, eph: set, failures: failures}, nil
}

func (s *Server) handlePropagate(c *gin.Context) {
	in, err := s.bind(c)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx, cancel := s.withTimeout(c)
	defer cancel()

	p, err := s.propagateRequest(ctx, in)
	if err != nil {
		writeError(c, err)
		return
	}
	out := propagateResponse{Ephemeris: make([]model.Ephemeris, 0, len(p.fleet)), Failures: p.failures}
	for _, sat := range p.fleet {
		if samples, ok := p.eph[sat.ID]; ok {
			out.Ephemeris = append(out.Ephemeris, model.Ephemeris{SatelliteID: sat.ID, Samples: samples})
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAccess(c *gin.Context) {
	in, err := s.bind(c)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx, cancel := s.withTimeout(c)
	defer cancel()

	p, err := s.propagateRequest(ctx, in)
	if err != nil {
		writeError(c, err)
		return
	}
	records, failures, err := p.engine.ComputeAccess(ctx, p.eph, propagated(p), in.Targets, in.Constraints, p.grid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, accessResponse{Records: records, Failures: append(p.failures, failures...)})
}

type coverageRequest struct {
	Targets   []model.Target        `json:"targets"`
	TargetIDs []string              `json:"target_ids,omitempty"`
	Records   []model.AccessRecord  `json:"records"`
	Coverage  model.CoverageOptions `json:"coverage"`
}

func (s *Server) handleCoverage(c *gin.Context) {
	var in coverageRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	targets, err := s.catalog.ResolveTargets(in.TargetIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	in.Targets = append(in.Targets, targets...)
	if err := analysis.ValidateTargets(in.Targets); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.ComputeCoverage(c.Request.Context(), in.Targets, in.Records, in.Coverage))
}

func (s *Server) handleDataMetrics(c *gin.Context) {
	in, err := s.bind(c)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx, cancel := s.withTimeout(c)
	defer cancel()

	p, err := s.propagateRequest(ctx, in)
	if err != nil {
		writeError(c, err)
		return
	}
	records, failures, err := p.engine.ComputeDataMetrics(ctx, in.Records, p.eph, in.Targets, p.grid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dataMetricsResponse{Records: records, Failures: append(p.failures, failures...)})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	in, err := s.bind(c)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx, cancel := s.withTimeout(c)
	defer cancel()

	report, err := s.engine.Run(ctx, in.Request)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type tleRequest struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// handleValidateTLE always answers 200 for a decodable body; the verdict is
// in the "valid" field.
func (s *Server) handleValidateTLE(c *gin.Context) {
	var in tleRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	el, err := tle.Parse(in.Line1, in.Line2)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":           true,
		"catalog_number":  el.CatalogNumber,
		"classification":  string(el.Classification),
		"epoch":           el.Epoch,
		"inclination":     el.Inclination,
		"raan":            el.RAAN,
		"eccentricity":    el.Eccentricity,
		"arg_perigee":     el.ArgPerigee,
		"mean_anomaly":    el.MeanAnomaly,
		"mean_motion":     el.MeanMotion,
		"bstar":           el.BStar,
		"revolution":      el.RevolutionNumber,
		"intl_designator": el.IntlDesignator,
	})
}

func (s *Server) handleAddSatellite(c *gin.Context) {
	var sat model.Satellite
	if err := c.ShouldBindJSON(&sat); err != nil {
		writeError(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := s.catalog.AddSatellite(sat); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sat)
}

func (s *Server) handleAddConstellation(c *gin.Context) {
	var w model.WalkerConstellation
	if err := c.ShouldBindJSON(&w); err != nil {
		writeError(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	members, err := w.Satellites()
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.catalog.AddSatellites(members); err != nil {
		writeError(c, err)
		return
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	c.JSON(http.StatusCreated, gin.H{"satellite_ids": ids})
}

func (s *Server) handleListSatellites(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"satellites": s.catalog.ListSatellites()})
}

func (s *Server) handleGetSatellite(c *gin.Context) {
	sat, err := s.catalog.GetSatellite(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sat)
}

func (s *Server) handleRemoveSatellite(c *gin.Context) {
	if err := s.catalog.RemoveSatellite(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAddTarget(c *gin.Context) {
	var t model.Target
	if err := c.ShouldBindJSON(&t); err != nil {
		writeError(c, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if err := s.catalog.AddTarget(t); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) handleListTargets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"targets": s.catalog.ListTargets()})
}

func (s *Server) handleGetTarget(c *gin.Context) {
	t, err := s.catalog.GetTarget(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleRemoveTarget(c *gin.Context) {
	if err := s.catalog.RemoveTarget(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func propagated(p prepared) []model.Satellite {
	out := make([]model.Satellite, 0, len(p.eph))
	for _, s := range p.fleet {
		if _, ok := p.eph[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out
}
