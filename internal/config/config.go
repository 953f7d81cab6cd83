package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/signalsfoundry/coverage-analyzer/core"
	"github.com/signalsfoundry/coverage-analyzer/model"
)

// Config holds process-wide settings for the analysis binaries.
type Config struct {
	HTTPAddr       string
	MetricsAddr    string
	Workers        int
	Frame          model.ReferenceFrame
	Propagator     core.PropagatorKind
	DefaultStep    time.Duration
	RequestTimeout time.Duration
}

// LoadConfig reads ANALYSIS_* environment variables, falling back to
// defaults for unset or unparsable values. Frame and propagator names are
// checked by Validate.
func LoadConfig() Config {
	return Config{
		HTTPAddr:       getEnv("ANALYSIS_HTTP_ADDR", ":8080"),
		MetricsAddr:    getEnv("ANALYSIS_METRICS_ADDR", ":9090"),
		Workers:        getEnvInt("ANALYSIS_WORKERS", runtime.NumCPU()),
		Frame:          model.ReferenceFrame(getEnv("ANALYSIS_FRAME", string(model.FrameITRS))),
		Propagator:     core.PropagatorKind(getEnv("ANALYSIS_PROPAGATOR", string(core.PropagatorKepler))),
		DefaultStep:    getEnvDuration("ANALYSIS_DEFAULT_STEP", 10*time.Second),
		RequestTimeout: getEnvDuration("ANALYSIS_REQUEST_TIMEOUT", 2*time.Minute),
	}
}

// Validate normalises the frame and propagator names and rejects values
// the engine cannot run with.
func (c *Config) Validate() error {
	frame, err := model.ParseReferenceFrame(string(c.Frame))
	if err != nil {
		return fmt.Errorf("ANALYSIS_FRAME: %w", err)
	}
	c.Frame = frame

	kind, err := core.ParsePropagatorKind(string(c.Propagator))
	if err != nil {
		return fmt.Errorf("ANALYSIS_PROPAGATOR: %w", err)
	}
	c.Propagator = kind

	if c.Workers < 1 {
		return fmt.Errorf("ANALYSIS_WORKERS must be positive, got %d", c.Workers)
	}
	if c.DefaultStep <= 0 {
		return fmt.Errorf("ANALYSIS_DEFAULT_STEP must be positive, got %v", c.DefaultStep)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("ANALYSIS_REQUEST_TIMEOUT must be positive, got %v", c.RequestTimeout)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
