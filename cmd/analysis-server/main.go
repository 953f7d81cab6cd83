package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/coverage-analyzer/internal/analysis"
	"github.com/signalsfoundry/coverage-analyzer/internal/api"
	"github.com/signalsfoundry/coverage-analyzer/internal/config"
	"github.com/signalsfoundry/coverage-analyzer/internal/logging"
	"github.com/signalsfoundry/coverage-analyzer/internal/observability"
	"github.com/signalsfoundry/coverage-analyzer/internal/scenario"
	"github.com/signalsfoundry/coverage-analyzer/kb"
)

// options are the command-line settings layered over the environment.
type options struct {
	config.Config
	ScenarioPath string
}

func main() {
	cfg := config.LoadConfig()
	opts := options{Config: cfg}
	flag.StringVar(&opts.HTTPAddr, "http-addr", cfg.HTTPAddr, "TCP address the analysis API listens on")
	flag.StringVar(&opts.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "HTTP address for Prometheus /metrics (empty to disable)")
	flag.IntVar(&opts.Workers, "workers", cfg.Workers, "maximum concurrent evaluation tasks per run")
	flag.StringVar(&opts.ScenarioPath, "scenario", "", "optional scenario file used to seed the catalog")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := opts.Validate(); err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", opts.HTTPAddr)
	if err != nil {
		log.Error(ctx, "failed to listen", logging.String("addr", opts.HTTPAddr), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, opts, log, lis); err != nil {
		log.Error(ctx, "analysis server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the API on lis until ctx is cancelled, then shuts down both
// servers.
func run(ctx context.Context, opts options, log logging.Logger, lis net.Listener) error {
	gin.SetMode(gin.ReleaseMode)

	reg := prometheus.NewRegistry()
	analysisMetrics, err := observability.NewAnalysisCollector(reg)
	if err != nil {
		return fmt.Errorf("analysis metrics: %w", err)
	}
	httpMetrics, err := observability.NewHTTPCollector(reg)
	if err != nil {
		return fmt.Errorf("http metrics: %w", err)
	}

	engine := analysis.NewEngine(
		analysis.WithWorkers(opts.Workers),
		analysis.WithFrame(opts.Frame),
		analysis.WithPropagator(opts.Propagator),
		analysis.WithDefaultStep(opts.DefaultStep),
		analysis.WithLogger(log),
		analysis.WithMetrics(analysisMetrics),
	)

	catalog := kb.NewCatalog()
	unsubscribe := catalog.Subscribe(func(e kb.Event) {
		log.Debug(context.Background(), "catalog changed",
			logging.String("event", e.Type.String()),
			logging.String("id", e.ID),
		)
	})
	defer unsubscribe()

	if opts.ScenarioPath != "" {
		if err := seedCatalog(ctx, catalog, opts.ScenarioPath, log); err != nil {
			return err
		}
	}

	srv, err := api.NewServer(api.Options{
		Engine:         engine,
		Catalog:        catalog,
		Logger:         log,
		HTTPMetrics:    httpMetrics,
		MetricsHandler: analysisMetrics.Handler(),
		RequestTimeout: opts.RequestTimeout,
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := serveMetrics(opts.MetricsAddr, analysisMetrics, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting analysis API", logging.String("addr", lis.Addr().String()))
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	log.Info(context.Background(), "shutting down analysis API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func seedCatalog(ctx context.Context, catalog *kb.Catalog, path string, log logging.Logger) error {
	req, err := scenario.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load scenario %q: %w", path, err)
	}
	summary, err := scenario.Populate(catalog, req)
	if err != nil {
		return fmt.Errorf("seed catalog from %q: %w", path, err)
	}
	log.Info(ctx, "seeded catalog",
		logging.String("path", path),
		logging.Int("satellites", len(summary.SatelliteIDs)),
		logging.Int("targets", len(summary.TargetIDs)),
	)
	return nil
}

func serveMetrics(addr string, collector *observability.AnalysisCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
