package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sheldongordon4/coherence-engine/internal/incident"
	"github.com/sheldongordon4/coherence-engine/internal/metrics"
	"github.com/sheldongordon4/coherence-engine/internal/source"
	"github.com/sheldongordon4/coherence-engine/internal/storage"
)

type stubProvider struct {
	name   string
	series []float64
	meta   source.Meta
	err    error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Fetch(ctx context.Context, windowSeconds int) ([]float64, source.Meta, error) {
	if s.err != nil {
		return nil, source.Meta{}, s.err
	}
	meta := s.meta
	meta.Records = len(s.series)
	return s.series, meta, nil
}

func testOptions() Options {
	return Options{
		ServiceName:          "coherence-engine",
		Environment:          "test",
		DefaultWindowSeconds: 3600,
		DefaultSource:        source.NameMock,
		IncludeLegacy:        true,
		MinSeverity:          metrics.RiskMedium,
		PersistenceBackend:   "none",
	}
}

func newTestApp(t *testing.T, store storage.MetricsStore, sink incident.Sink, opts Options, providers ...source.Provider) *fiber.App {
	t.Helper()

	pipeline, err := metrics.NewPipeline(metrics.DefaultThresholds(), "", zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	handler := NewHandler(pipeline, source.NewResolver(providers...), store, sink, opts, zerolog.Nop())
	app := fiber.New()
	registerRoutes(app, handler)
	return app
}

func steadyProvider() *stubProvider {
	series := make([]float64, 20)
	for i := range series {
		series[i] = 0.82
	}
	return &stubProvider{name: source.NameMock, series: series, meta: source.Meta{Upstream: "stub", Pages: 1}}
}

func volatileProvider() *stubProvider {
	series := make([]float64, 20)
	for i := range series {
		if i%2 == 0 {
			series[i] = 0.1
		} else {
			series[i] = 0.9
		}
	}
	return &stubProvider{name: source.NameMock, series: series, meta: source.Meta{Upstream: "stub", Pages: 1}}
}

func doRequest(t *testing.T, app *fiber.App, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("request %s failed: %v", path, err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp, body
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, nil, nil, testOptions(), steadyProvider())

	resp, body := doRequest(t, app, "/health")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var health healthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("expected status ok, got %q", health.Status)
	}
}

func TestMetricsDefaults(t *testing.T) {
	app := newTestApp(t, nil, nil, testOptions(), steadyProvider())

	resp, body := doRequest(t, app, "/coherence/metrics")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var payload metricsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if payload.InteractionStability != 0.82 {
		t.Errorf("expected stability 0.82, got %v", payload.InteractionStability)
	}
	if payload.SignalVolatility != 0 {
		t.Errorf("expected zero volatility on a constant series, got %v", payload.SignalVolatility)
	}
	if payload.TrustContinuityRiskLevel != "low" {
		t.Errorf("expected low risk, got %q", payload.TrustContinuityRiskLevel)
	}
	if payload.Meta.WindowSec != 3600 {
		t.Errorf("expected default window 3600, got %d", payload.Meta.WindowSec)
	}
	if payload.Meta.N != 20 {
		t.Errorf("expected n=20, got %d", payload.Meta.N)
	}
	if payload.Meta.Method != methodDescription {
		t.Errorf("unexpected method description %q", payload.Meta.Method)
	}
	if payload.CoherenceMean == nil || *payload.CoherenceMean != payload.InteractionStability {
		t.Errorf("legacy coherenceMean must mirror interactionStability")
	}
	if payload.PredictedDriftRisk == nil || *payload.PredictedDriftRisk != payload.TrustContinuityRiskLevel {
		t.Errorf("legacy predictedDriftRisk must mirror trustContinuityRiskLevel")
	}
}

func TestMetricsDropsLegacyNames(t *testing.T) {
	app := newTestApp(t, nil, nil, testOptions(), steadyProvider())

	resp, body := doRequest(t, app, "/coherence/metrics?include_legacy=false")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	for _, key := range []string{"coherenceMean", "volatilityIndex", "predictedDriftRisk"} {
		if _, present := raw[key]; present {
			t.Errorf("legacy key %q present despite include_legacy=false", key)
		}
	}
	if _, present := raw["interactionStability"]; !present {
		t.Error("canonical key interactionStability missing")
	}
}

func TestMetricsRejectsBadQuery(t *testing.T) {
	app := newTestApp(t, nil, nil, testOptions(), steadyProvider())

	cases := []string{
		"/coherence/metrics?window=abc",
		"/coherence/metrics?window=0",
		"/coherence/metrics?source=etcd",
		"/coherence/metrics?include_legacy=maybe",
	}
	for _, path := range cases {
		resp, _ := doRequest(t, app, path)
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

func TestMetricsUpstreamUnavailable(t *testing.T) {
	failing := &stubProvider{
		name: source.NameMock,
		err:  fmt.Errorf("signals summary: %w", source.ErrIngestUnavailable),
	}
	app := newTestApp(t, nil, nil, testOptions(), failing)

	resp, _ := doRequest(t, app, "/coherence/metrics")
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestMetricsPersistsRow(t *testing.T) {
	store := storage.NewCSVStore(filepath.Join(t.TempDir(), "rolling_store.csv"), zerolog.Nop())
	app := newTestApp(t, store, nil, testOptions(), steadyProvider())

	resp, _ := doRequest(t, app, "/coherence/metrics?window=30m")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	rows, err := store.ReadLatest(context.Background(), 10)
	if err != nil {
		t.Fatalf("failed to read store: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 persisted row, got %d", len(rows))
	}
	if rows[0].WindowSeconds != 1800 {
		t.Errorf("expected window 1800, got %d", rows[0].WindowSeconds)
	}
	if rows[0].Source != source.NameMock {
		t.Errorf("expected source %q, got %q", source.NameMock, rows[0].Source)
	}
	if rows[0].RequestID == "" {
		t.Error("expected a request id on the persisted row")
	}
}

func TestMetricsEmitsIncidentAboveGate(t *testing.T) {
	dir := t.TempDir()
	sink := incident.NewFileSink(dir, zerolog.Nop())
	app := newTestApp(t, nil, sink, testOptions(), volatileProvider())

	resp, _ := doRequest(t, app, "/coherence/metrics?window=1h")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to list incidents dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 incident file, got %d", len(entries))
	}
}

func TestMetricsSuppressesIncidentBelowGate(t *testing.T) {
	dir := t.TempDir()
	sink := incident.NewFileSink(dir, zerolog.Nop())
	app := newTestApp(t, nil, sink, testOptions(), steadyProvider())

	resp, _ := doRequest(t, app, "/coherence/metrics")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("failed to list incidents dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no incident files, got %d", len(entries))
	}
}

func TestHistory(t *testing.T) {
	store := storage.NewCSVStore(filepath.Join(t.TempDir(), "rolling_store.csv"), zerolog.Nop())
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		row := storage.Row{
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			WindowSeconds: 3600,
			SampleCount:   10 + i,
			Stability:     0.8,
			Volatility:    0.05,
			RiskLevel:     "low",
			Source:        source.NameMock,
		}
		if err := store.Save(context.Background(), row); err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}
	}
	app := newTestApp(t, store, nil, testOptions(), steadyProvider())

	resp, body := doRequest(t, app, "/coherence/history?limit=2")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload historyResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if payload.Count != 2 {
		t.Fatalf("expected 2 rows, got %d", payload.Count)
	}
	if payload.Rows[0].N != 12 {
		t.Errorf("expected newest row first (n=12), got n=%d", payload.Rows[0].N)
	}
}

func TestHistoryWithoutStore(t *testing.T) {
	app := newTestApp(t, nil, nil, testOptions(), steadyProvider())

	resp, _ := doRequest(t, app, "/coherence/history")
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	store := storage.NewCSVStore(filepath.Join(t.TempDir(), "rolling_store.csv"), zerolog.Nop())
	app := newTestApp(t, store, nil, testOptions(), steadyProvider())

	for _, path := range []string{"/coherence/history?limit=0", "/coherence/history?limit=5000"} {
		resp, _ := doRequest(t, app, path)
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

func TestIngestRun(t *testing.T) {
	remote := steadyProvider()
	remote.name = source.NameDarshan
	remote.meta = source.Meta{Upstream: "https://darshan.test", Pages: 2, Retries: 1, Latency: 40 * time.Millisecond}
	app := newTestApp(t, nil, nil, testOptions(), remote)

	resp, body := doRequest(t, app, "/ingest/run")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	var payload ingestResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if !payload.OK {
		t.Error("expected ok=true")
	}
	if payload.Records != 20 {
		t.Errorf("expected 20 records, got %d", payload.Records)
	}
}

func TestIngestRunWithoutRemote(t *testing.T) {
	app := newTestApp(t, nil, nil, testOptions(), steadyProvider())

	resp, _ := doRequest(t, app, "/ingest/run")
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestIngestRunRejectsBadRange(t *testing.T) {
	remote := steadyProvider()
	remote.name = source.NameDarshan
	app := newTestApp(t, nil, nil, testOptions(), remote)

	cases := []string{
		"/ingest/run?start_ts=yesterday",
		"/ingest/run?end_ts=nope",
		"/ingest/run?start_ts=2025-04-01T12:00:00Z&end_ts=2025-04-01T10:00:00Z",
	}
	for _, path := range cases {
		resp, _ := doRequest(t, app, path)
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, resp.StatusCode)
		}
	}
}

func TestStatusReportsLastIngest(t *testing.T) {
	app := newTestApp(t, nil, nil, testOptions(), steadyProvider())

	resp, body := doRequest(t, app, "/status")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var before statusResponse
	if err := json.Unmarshal(body, &before); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if before.Service != "coherence-engine" {
		t.Errorf("unexpected service name %q", before.Service)
	}
	if before.LastIngest != nil {
		t.Error("expected no ingest before the first fetch")
	}

	if resp, _ := doRequest(t, app, "/coherence/metrics"); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("metrics request failed with %d", resp.StatusCode)
	}

	_, body = doRequest(t, app, "/status")
	var after statusResponse
	if err := json.Unmarshal(body, &after); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if after.LastIngest == nil {
		t.Fatal("expected lastIngest after a metrics fetch")
	}
	if after.LastIngest.Source != source.NameMock {
		t.Errorf("expected last ingest source %q, got %q", source.NameMock, after.LastIngest.Source)
	}
}

func TestNotFound(t *testing.T) {
	app := newTestApp(t, nil, nil, testOptions(), steadyProvider())

	resp, _ := doRequest(t, app, "/nonexistent")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
