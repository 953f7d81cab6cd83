package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPCollector records request counts and latencies for the HTTP surface.
type HTTPCollector struct {
	Requests  *prometheus.CounterVec
	Durations *prometheus.HistogramVec
}

// NewHTTPCollector registers HTTP metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewHTTPCollector(reg prometheus.Registerer) (*HTTPCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"path", "method", "code"}), "http_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 120},
	}, []string{"path", "method"}), "http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &HTTPCollector{Requests: requests, Durations: durations}, nil
}

// Middleware returns a gin handler that records every request against its
// route template. Unmatched routes are labeled "unmatched".
func (c *HTTPCollector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		if c == nil {
			return
		}
		path := ctx.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := ctx.Request.Method
		if c.Requests != nil {
			c.Requests.WithLabelValues(path, method, strconv.Itoa(ctx.Writer.Status())).Inc()
		}
		if c.Durations != nil {
			c.Durations.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
		}
	}
}
