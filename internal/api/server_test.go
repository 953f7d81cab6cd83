package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/coverage-analyzer/internal/analysis"
	"github.com/signalsfoundry/coverage-analyzer/internal/observability"
	"github.com/signalsfoundry/coverage-analyzer/kb"
	"github.com/signalsfoundry/coverage-analyzer/model"
	"github.com/signalsfoundry/coverage-analyzer/timectrl"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	issLine1 = "1 25544U 98067A   21156.30527927  .00003432  00000-0  70541-4 0  9993"
	issLine2 = "2 25544  51.6455  41.4969 0003508  68.0432  78.3395 15.48957534286754"
)

const satelliteBody = `{"id": "s1", "orbit": {"type": "circular", "altitude": 500000, "inclination": 97.4},
  "instruments": [{"id": "cam", "field_of_view": {"shape": "CIRCULAR", "diameter": 30}}]}`

const targetBody = `{"id": "t1", "latitude": 10, "longitude": 20}`

type fixture struct {
	router  *gin.Engine
	catalog *kb.Catalog
	reg     *prometheus.Registry
}

func newFixture(t *testing.T, timeout time.Duration) fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	analysisMetrics, err := observability.NewAnalysisCollector(reg)
	if err != nil {
		t.Fatalf("NewAnalysisCollector: %v", err)
	}
	httpMetrics, err := observability.NewHTTPCollector(reg)
	if err != nil {
		t.Fatalf("NewHTTPCollector: %v", err)
	}

	catalog := kb.NewCatalog()
	srv, err := NewServer(Options{
		Engine:         analysis.NewEngine(analysis.WithWorkers(2), analysis.WithMetrics(analysisMetrics)),
		Catalog:        catalog,
		HTTPMetrics:    httpMetrics,
		MetricsHandler: analysisMetrics.Handler(),
		RequestTimeout: timeout,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return fixture{router: srv.Router(), catalog: catalog, reg: reg}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// expect fails the test unless w carries the wanted status code.
func expect(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	if w.Code != code {
		t.Fatalf("status %d, want %d: %s", w.Code, code, w.Body.String())
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func lenOf(v any) int {
	l, _ := v.([]any)
	return len(l)
}

func TestNewServerRequiresEngineAndCatalog(t *testing.T) {
	if _, err := NewServer(Options{Catalog: kb.NewCatalog()}); err == nil {
		t.Fatalf("expected an error without an engine")
	}
	if _, err := NewServer(Options{Engine: analysis.NewEngine()}); err == nil {
		t.Fatalf("expected an error without a catalog")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, 0)

	w := f.do(t, http.MethodGet, "/healthz", "")
	expect(t, w, http.StatusOK)
	if got := decode(t, w)["status"]; got != "ok" {
		t.Fatalf("status %v, want ok", got)
	}
	if id := w.Header().Get(RequestIDHeader); len(id) != 32 {
		t.Fatalf("generated request id %q is not 32 characters", id)
	}

	w = f.do(t, http.MethodGet, "/metrics", "")
	expect(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("metrics output lacks http_requests_total")
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/v1/satellites/missing", nil)
	req.Header.Set(RequestIDHeader, "abc123")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	expect(t, w, http.StatusNotFound)
	if got := w.Header().Get(RequestIDHeader); got != "abc123" {
		t.Fatalf("header request id %q, want abc123", got)
	}
	if got := decode(t, w)["request_id"]; got != "abc123" {
		t.Fatalf("body request id %v, want abc123", got)
	}
}

func TestSatelliteLifecycle(t *testing.T) {
	f := newFixture(t, 0)

	expect(t, f.do(t, http.MethodPost, "/v1/satellites", satelliteBody), http.StatusCreated)
	expect(t, f.do(t, http.MethodPost, "/v1/satellites", satelliteBody), http.StatusConflict)

	w := f.do(t, http.MethodGet, "/v1/satellites/s1", "")
	expect(t, w, http.StatusOK)
	orbit, _ := decode(t, w)["orbit"].(map[string]any)
	if orbit["type"] != "circular" {
		t.Fatalf("orbit %v", orbit)
	}

	w = f.do(t, http.MethodGet, "/v1/satellites", "")
	expect(t, w, http.StatusOK)
	if n := lenOf(decode(t, w)["satellites"]); n != 1 {
		t.Fatalf("listed %d satellites, want 1", n)
	}

	expect(t, f.do(t, http.MethodDelete, "/v1/satellites/s1", ""), http.StatusNoContent)
	expect(t, f.do(t, http.MethodDelete, "/v1/satellites/s1", ""), http.StatusNotFound)

	expect(t, f.do(t, http.MethodPost, "/v1/satellites", `{"id": "bad", "orbit": {"type": "circular", "altitude": -5}}`), http.StatusBadRequest)
	expect(t, f.do(t, http.MethodPost, "/v1/satellites", `{"id": `), http.StatusBadRequest)
}

func TestTargetLifecycle(t *testing.T) {
	f := newFixture(t, 0)

	expect(t, f.do(t, http.MethodPost, "/v1/targets", targetBody), http.StatusCreated)
	expect(t, f.do(t, http.MethodPost, "/v1/targets", targetBody), http.StatusConflict)
	expect(t, f.do(t, http.MethodPost, "/v1/targets", `{"id": "x", "latitude": 91}`), http.StatusBadRequest)

	w := f.do(t, http.MethodGet, "/v1/targets/t1", "")
	expect(t, w, http.StatusOK)
	if got := decode(t, w)["longitude"]; got != 20.0 {
		t.Fatalf("longitude %v, want 20", got)
	}

	expect(t, f.do(t, http.MethodDelete, "/v1/targets/t1", ""), http.StatusNoContent)
	expect(t, f.do(t, http.MethodGet, "/v1/targets/t1", ""), http.StatusNotFound)
}

func TestAddConstellation(t *testing.T) {
	f := newFixture(t, 0)
	body := `{"id": "w", "number_satellites": 4, "number_planes": 2,
	  "orbit": {"type": "circular", "altitude": 550000, "inclination": 53}}`

	w := f.do(t, http.MethodPost, "/v1/constellations", body)
	expect(t, w, http.StatusCreated)
	if n := lenOf(decode(t, w)["satellite_ids"]); n != 4 {
		t.Fatalf("got %d satellite ids, want 4", n)
	}
	if n := len(f.catalog.ListSatellites()); n != 4 {
		t.Fatalf("catalog holds %d satellites, want 4", n)
	}

	w = f.do(t, http.MethodPost, "/v1/constellations", `{"id": "w", "number_satellites": 3, "number_planes": 2,
	  "orbit": {"type": "circular", "altitude": 550000}}`)
	expect(t, w, http.StatusBadRequest)
}

func TestAddConstellationWithTakenMemberIDAddsNothing(t *testing.T) {
	f := newFixture(t, 0)
	taken := model.Satellite{ID: "w-1-2", Orbit: model.CircularOrbit{Altitude: 500e3, Inclination: 97.4}}
	if err := f.catalog.AddSatellite(taken); err != nil {
		t.Fatalf("AddSatellite: %v", err)
	}

	body := `{"id": "w", "number_satellites": 4, "number_planes": 2,
	  "orbit": {"type": "circular", "altitude": 550000, "inclination": 53}}`
	expect(t, f.do(t, http.MethodPost, "/v1/constellations", body), http.StatusConflict)

	if _, err := f.catalog.GetSatellite("w-1-1"); !errors.Is(err, kb.ErrSatelliteNotFound) {
		t.Fatalf("w-1-1 should not have been added, got %v", err)
	}
	if n := len(f.catalog.ListSatellites()); n != 1 {
		t.Fatalf("catalog holds %d satellites, want 1", n)
	}
}

func TestAnalyzeWithCatalogReferences(t *testing.T) {
	f := newFixture(t, 0)
	expect(t, f.do(t, http.MethodPost, "/v1/satellites", satelliteBody), http.StatusCreated)
	expect(t, f.do(t, http.MethodPost, "/v1/targets", targetBody), http.StatusCreated)

	body := `{"satellite_ids": ["s1"], "target_ids": ["t1"],
	  "start": "2024-03-20T00:00:00Z", "duration": "6h", "step": "30s", "include_ephemeris": true}`
	w := f.do(t, http.MethodPost, "/v1/analyze", body)
	expect(t, w, http.StatusOK)

	report := decode(t, w)
	if id, _ := report["run_id"].(string); id == "" {
		t.Fatalf("report has no run id")
	}
	if lenOf(report["access"]) != 1 || lenOf(report["ephemeris"]) != 1 {
		t.Fatalf("access %v ephemeris records %d", report["access"], lenOf(report["ephemeris"]))
	}
	coverage, _ := report["coverage"].(map[string]any)
	if n := lenOf(coverage["records"]); n != 1 {
		t.Fatalf("got %d coverage records, want 1", n)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	f := newFixture(t, 0)
	cases := map[string]struct {
		body string
		code int
	}{
		"malformed":         {`{"targets": [`, http.StatusBadRequest},
		"wrong type":        {`{"targets": 5}`, http.StatusBadRequest},
		"negative duration": {`{"targets": [], "start": "2024-03-20T00:00:00Z", "duration": "-1h"}`, http.StatusBadRequest},
		"oversized grid":    {`{"targets": [], "start": "2024-03-20T00:00:00Z", "duration": "2000000h", "step": "1ns"}`, http.StatusBadRequest},
		"unknown frame":     {`{"targets": [], "start": "2024-03-20T00:00:00Z", "duration": "1h", "frame": "GCRF"}`, http.StatusBadRequest},
		"unknown satellite": {`{"satellite_ids": ["nope"], "targets": [], "duration": "1h"}`, http.StatusNotFound},
		"unknown target":    {`{"target_ids": ["nope"], "duration": "1h"}`, http.StatusNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/v1/analyze", tc.body)
			expect(t, w, tc.code)
			if msg, _ := decode(t, w)["error"].(string); msg == "" {
				t.Fatalf("error body is empty")
			}
		})
	}
}

func TestOversizedGridIsRejectedOnEveryStage(t *testing.T) {
	f := newFixture(t, 0)
	body := `{"satellites": [` + satelliteBody + `], "targets": [` + targetBody + `],
	  "start": "2024-03-20T00:00:00Z", "duration": "2000000h", "step": "1ns"}`
	for _, path := range []string{"/v1/propagate", "/v1/access", "/v1/datametrics", "/v1/analyze"} {
		expect(t, f.do(t, http.MethodPost, path, body), http.StatusBadRequest)
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	f := newFixture(t, time.Nanosecond)
	body := `{"satellites": [` + satelliteBody + `], "targets": [` + targetBody + `],
	  "start": "2024-03-20T00:00:00Z", "duration": "24h"}`
	expect(t, f.do(t, http.MethodPost, "/v1/analyze", body), http.StatusRequestTimeout)
}

func TestStageEndpoints(t *testing.T) {
	f := newFixture(t, 0)
	base := `"satellites": [` + satelliteBody + `], "targets": [` + targetBody + `],
	  "start": "2024-03-20T00:00:00Z", "duration": "2h", "step": "1m"`

	w := f.do(t, http.MethodPost, "/v1/propagate", "{"+base+"}")
	expect(t, w, http.StatusOK)
	eph, _ := decode(t, w)["ephemeris"].([]any)
	if len(eph) != 1 {
		t.Fatalf("got %d ephemerides, want 1", len(eph))
	}
	first, _ := eph[0].(map[string]any)
	if n := lenOf(first["samples"]); n != 121 {
		t.Fatalf("got %d ephemeris samples, want 121", n)
	}

	w = f.do(t, http.MethodPost, "/v1/access", "{"+base+"}")
	expect(t, w, http.StatusOK)
	if n := lenOf(decode(t, w)["records"]); n != 1 {
		t.Fatalf("got %d access records, want 1", n)
	}

	records := `"records": [{"target_id": "t1", "samples": [
	  {"satellite_id": "s1", "instrument_id": "cam", "start": "2024-03-20T00:10:00Z", "duration": 120000000000}]}]`
	w = f.do(t, http.MethodPost, "/v1/datametrics", "{"+base+", "+records+"}")
	expect(t, w, http.StatusOK)
	if n := lenOf(decode(t, w)["records"]); n != 1 {
		t.Fatalf("got %d data metrics records, want 1", n)
	}
}

func TestCoverageEndpoint(t *testing.T) {
	f := newFixture(t, 0)
	if err := f.catalog.AddTarget(model.Target{ID: "b", Latitude: 1, Longitude: 1}); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}

	body := `{"targets": [{"id": "a"}], "target_ids": ["b"], "records": [{"target_id": "a", "samples": [
	  {"satellite_id": "s", "instrument_id": "i", "start": "2024-03-20T00:00:00Z", "duration": 60000000000},
	  {"satellite_id": "s", "instrument_id": "i", "start": "2024-03-20T02:00:00Z", "duration": 60000000000}]}]}`
	w := f.do(t, http.MethodPost, "/v1/coverage", body)
	expect(t, w, http.StatusOK)

	out := decode(t, w)
	if out["coverage_fraction"] != 0.5 {
		t.Fatalf("coverage fraction %v, want 0.5", out["coverage_fraction"])
	}
	if out["harmonic_mean_revisit"] != float64(2*time.Hour) {
		t.Fatalf("harmonic mean revisit %v, want 2h", out["harmonic_mean_revisit"])
	}

	expect(t, f.do(t, http.MethodPost, "/v1/coverage", `{"targets": [{"id": "a"}, {"id": "a"}]}`), http.StatusBadRequest)
}

func TestCoverageEndpointMergesRecordsAndIgnoresUnknownTargets(t *testing.T) {
	f := newFixture(t, 0)
	body := `{"targets": [{"id": "a"}], "records": [
	  {"target_id": "a", "samples": [
	    {"satellite_id": "s1", "instrument_id": "i", "start": "2024-03-20T00:00:00Z", "duration": 60000000000},
	    {"satellite_id": "s1", "instrument_id": "i", "start": "2024-03-20T10:00:00Z", "duration": 60000000000}]},
	  {"target_id": "a", "samples": [
	    {"satellite_id": "s2", "instrument_id": "i", "start": "2024-03-20T05:00:00Z", "duration": 60000000000}]},
	  {"target_id": "zzz", "samples": [
	    {"satellite_id": "s1", "instrument_id": "i", "start": "2024-03-20T00:00:00Z", "duration": 60000000000},
	    {"satellite_id": "s1", "instrument_id": "i", "start": "2024-03-20T00:30:00Z", "duration": 60000000000}]}]}`
	w := f.do(t, http.MethodPost, "/v1/coverage", body)
	expect(t, w, http.StatusOK)

	out := decode(t, w)
	records, _ := out["records"].([]any)
	if len(records) != 1 {
		t.Fatalf("got %d coverage records, want 1", len(records))
	}
	rec, _ := records[0].(map[string]any)
	if rec["target_id"] != "a" || rec["number_samples"] != 3.0 {
		t.Fatalf("merged record %v", rec)
	}
	if out["harmonic_mean_revisit"] != float64(5*time.Hour) {
		t.Fatalf("harmonic mean revisit %v, want 5h", out["harmonic_mean_revisit"])
	}
}

func TestValidateTLE(t *testing.T) {
	f := newFixture(t, 0)

	w := f.do(t, http.MethodPost, "/v1/tle/validate", `{"line1": "`+issLine1+`", "line2": "`+issLine2+`"}`)
	expect(t, w, http.StatusOK)
	out := decode(t, w)
	if out["valid"] != true || out["catalog_number"] != 25544.0 {
		t.Fatalf("validation result %v", out)
	}
	if inc, _ := out["inclination"].(float64); math.Abs(inc-51.6455) > 1e-9 {
		t.Fatalf("inclination %v, want 51.6455", out["inclination"])
	}

	broken := issLine1[:len(issLine1)-1] + "0"
	w = f.do(t, http.MethodPost, "/v1/tle/validate", `{"line1": "`+broken+`", "line2": "`+issLine2+`"}`)
	expect(t, w, http.StatusOK)
	out = decode(t, w)
	msg, _ := out["error"].(string)
	if out["valid"] != false || !strings.Contains(msg, "checksum") {
		t.Fatalf("broken checksum result %v", out)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{kb.ErrTargetNotFound, http.StatusNotFound},
		{kb.ErrSatelliteExists, http.StatusConflict},
		{analysis.ErrInvalidRequest, http.StatusBadRequest},
		{timectrl.ErrInvalidTimeGrid, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
