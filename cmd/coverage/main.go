package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/coverage-analyzer/core"
	"github.com/signalsfoundry/coverage-analyzer/internal/analysis"
	"github.com/signalsfoundry/coverage-analyzer/internal/config"
	"github.com/signalsfoundry/coverage-analyzer/internal/logging"
	"github.com/signalsfoundry/coverage-analyzer/internal/observability"
	"github.com/signalsfoundry/coverage-analyzer/internal/scenario"
	"github.com/signalsfoundry/coverage-analyzer/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "coverage: %v\n", err)
		}
		os.Exit(1)
	}
}

// run loads one scenario, analyses it and writes the JSON report to stdout.
// Logs go to stderr so the report can be piped.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg := config.LoadConfig()

	fs := flag.NewFlagSet("coverage", flag.ContinueOnError)
	fs.SetOutput(stderr)
	scenarioPath := fs.String("scenario", "", "path to a scenario JSON file (required)")
	workers := fs.Int("workers", cfg.Workers, "maximum concurrent evaluation tasks")
	propagator := fs.String("propagator", "", "override the scenario propagator: kepler, j2 or sgp4")
	frame := fs.String("frame", "", "override the scenario output frame: ICRF or ITRS")
	duration := fs.Duration("duration", 0, "override the scenario duration")
	step := fs.Duration("step", 0, "override the scenario step")
	ephemeris := fs.Bool("ephemeris", false, "include the propagated ephemeris in the report")
	pretty := fs.Bool("pretty", true, "indent the JSON report")
	timeout := fs.Duration("timeout", 0, "abort the run after this long (0 disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *scenarioPath == "" {
		fs.Usage()
		return fmt.Errorf("-scenario is required")
	}

	cfg.Workers = *workers
	if err := cfg.Validate(); err != nil {
		return err
	}

	logCfg := logging.ConfigFromEnv()
	logCfg.Output = stderr
	log := logging.New(logCfg)

	tracing := observability.TracingConfigFromEnv()
	tracing.Writer = stderr
	shutdownTracing, err := observability.InitTracing(ctx, tracing, log)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	req, err := scenario.LoadFile(*scenarioPath)
	if err != nil {
		return err
	}
	if *propagator != "" {
		req.Propagator = core.PropagatorKind(*propagator)
	}
	if *frame != "" {
		req.Frame = model.ReferenceFrame(*frame)
	}
	if *duration > 0 {
		req.Duration = model.Duration(*duration)
	}
	if *step > 0 {
		req.Step = model.Duration(*step)
	}
	req.IncludeEphemeris = req.IncludeEphemeris || *ephemeris

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	engine := analysis.NewEngine(
		analysis.WithWorkers(cfg.Workers),
		analysis.WithFrame(cfg.Frame),
		analysis.WithPropagator(cfg.Propagator),
		analysis.WithDefaultStep(cfg.DefaultStep),
		analysis.WithLogger(log),
	)

	started := time.Now()
	report, err := engine.Run(ctx, req)
	if err != nil {
		return err
	}
	log.Info(ctx, "analysis complete",
		logging.String("run_id", report.RunID),
		logging.Int("targets", len(report.Coverage.Records)),
		logging.Int("failures", len(report.Failures)),
		logging.Float("coverage_fraction", report.Coverage.CoverageFraction),
		logging.Duration("elapsed", time.Since(started)),
	)

	enc := json.NewEncoder(stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(report)
}
