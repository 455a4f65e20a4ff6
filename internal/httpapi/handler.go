package httpapi

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sheldongordon4/coherence-engine/internal/incident"
	"github.com/sheldongordon4/coherence-engine/internal/metrics"
	"github.com/sheldongordon4/coherence-engine/internal/source"
	"github.com/sheldongordon4/coherence-engine/internal/storage"
	"github.com/sheldongordon4/coherence-engine/internal/version"
)

const defaultHistoryLimit = 20
const maxHistoryLimit = 1000

// Options carry the request-independent settings a Handler needs.
type Options struct {
	ServiceName          string
	Environment          string
	DefaultWindowSeconds int
	DefaultSource        string
	IncludeLegacy        bool
	MinSeverity          metrics.RiskLevel
	PersistenceBackend   string
}

// Handler contains the HTTP route implementations. All routes share one
// pipeline, one source resolver, and one optional store and incident sink.
type Handler struct {
	pipeline *metrics.Pipeline
	sources  *source.Resolver
	store    storage.MetricsStore
	sink     incident.Sink
	opts     Options
	started  time.Time
	logger   zerolog.Logger

	mu         sync.Mutex
	lastIngest *lastIngestPayload
}

// NewHandler wires the route implementations. store and sink may be nil;
// the affected routes degrade explicitly rather than panicking.
func NewHandler(pipeline *metrics.Pipeline, sources *source.Resolver, store storage.MetricsStore, sink incident.Sink, opts Options, logger zerolog.Logger) *Handler {
	if opts.DefaultWindowSeconds <= 0 {
		opts.DefaultWindowSeconds = 3600
	}
	if opts.DefaultSource == "" {
		opts.DefaultSource = source.NameMock
	}
	if opts.MinSeverity == "" {
		opts.MinSeverity = metrics.RiskMedium
	}
	return &Handler{
		pipeline: pipeline,
		sources:  sources,
		store:    store,
		sink:     sink,
		opts:     opts,
		started:  time.Now().UTC(),
		logger:   logger.With().Str("component", "httpapi").Logger(),
	}
}

// Health reports liveness.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(healthResponse{
		Status:  "ok",
		Version: version.Version,
	})
}

// Status reports runtime facts: build, uptime, persistence backend, and
// the most recent ingest observed by any route.
func (h *Handler) Status(c *fiber.Ctx) error {
	now := time.Now().UTC()

	h.mu.Lock()
	last := h.lastIngest
	h.mu.Unlock()

	return c.JSON(statusResponse{
		Service:            h.opts.ServiceName,
		Version:            version.Version,
		Environment:        h.opts.Environment,
		StartedAt:          h.started.Format(time.RFC3339),
		Now:                now.Format(time.RFC3339),
		UptimeSec:          int64(now.Sub(h.started).Seconds()),
		PersistenceBackend: h.opts.PersistenceBackend,
		DefaultWindowSec:   h.opts.DefaultWindowSeconds,
		DefaultSource:      h.opts.DefaultSource,
		LastIngest:         last,
	})
}

// Metrics computes coherence metrics for one window on demand. The query
// is validated here in full; the pipeline only ever sees a clean series
// and a positive window.
func (h *Handler) Metrics(c *fiber.Ctx) error {
	windowSec := h.opts.DefaultWindowSeconds
	if raw := c.Query("window"); raw != "" {
		parsed, err := ParseWindow(raw)
		if err != nil {
			return badRequest(c, err)
		}
		windowSec = parsed
	}

	includeLegacy := h.opts.IncludeLegacy
	if raw := c.Query("include_legacy"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, errors.New("include_legacy must be a boolean"))
		}
		includeLegacy = parsed
	}

	sourceName := c.Query("source", h.opts.DefaultSource)
	provider, err := h.sources.Lookup(sourceName)
	if err != nil {
		return badRequest(c, err)
	}

	series, meta, err := provider.Fetch(c.Context(), windowSec)
	if err != nil {
		return h.upstreamError(c, sourceName, err)
	}
	h.recordIngest(sourceName, meta)

	result := h.pipeline.Run(series, windowSec)
	requestID := uuid.NewString()

	h.persistResult(c.Context(), result, sourceName, requestID)
	h.emitIncident(c.Context(), result, incident.Trace{
		Source:   h.opts.ServiceName,
		Upstream: meta.Upstream,
		Query:    string(c.Request().URI().QueryString()),
	})

	return c.JSON(newMetricsResponse(result, includeLegacy))
}

// History lists recently persisted rows, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	if h.store == nil {
		return serviceUnavailable(c, errors.New("persistence not configured"))
	}

	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		return badRequest(c, errors.New("limit must be between 1 and 1000"))
	}

	rows, err := h.store.ReadLatest(c.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("history read failed")
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: "history read failed"})
	}
	return c.JSON(newHistoryResponse(rows))
}

// rangeFetcher is what the ingest route needs beyond Provider: a fetch
// over an explicit time range.
type rangeFetcher interface {
	FetchRange(ctx context.Context, start, end time.Time) ([]float64, source.Meta, error)
}

// IngestRun executes one ingestion pass against the remote signal API and
// reports what happened. start_ts and end_ts (RFC3339) scope the pull;
// omitted, the pull covers the default window ending now.
func (h *Handler) IngestRun(c *fiber.Ctx) error {
	provider, err := h.sources.Lookup(source.NameDarshan)
	if err != nil {
		return serviceUnavailable(c, errors.New("remote ingestion not configured"))
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(h.opts.DefaultWindowSeconds) * time.Second)

	if raw := c.Query("start_ts"); raw != "" {
		start, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return badRequest(c, errors.New("start_ts must be RFC3339"))
		}
	}
	if raw := c.Query("end_ts"); raw != "" {
		end, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return badRequest(c, errors.New("end_ts must be RFC3339"))
		}
	}
	if !start.Before(end) {
		return badRequest(c, errors.New("start_ts must be before end_ts"))
	}

	var (
		series []float64
		meta   source.Meta
	)
	if ranged, ok := provider.(rangeFetcher); ok {
		series, meta, err = ranged.FetchRange(c.Context(), start, end)
	} else {
		series, meta, err = provider.Fetch(c.Context(), int(end.Sub(start).Seconds()))
	}
	if err != nil {
		return h.upstreamError(c, source.NameDarshan, err)
	}
	h.recordIngest(source.NameDarshan, meta)

	return c.JSON(ingestResponse{
		OK:           true,
		Records:      len(series),
		LatencyMS:    meta.Latency.Milliseconds(),
		PagesFetched: meta.Pages,
		Retries:      meta.Retries,
	})
}

// NotFound handles unmatched routes.
func (h *Handler) NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: "route not found"})
}

func (h *Handler) persistResult(ctx context.Context, result metrics.Result, sourceName, requestID string) {
	if h.store == nil {
		return
	}
	row := storage.Row{
		Timestamp:     result.ComputedAt,
		WindowSeconds: result.WindowSeconds,
		SampleCount:   result.SampleCount,
		Stability:     result.Stability,
		Volatility:    result.Volatility,
		RiskLevel:     string(result.RiskLevel),
		Source:        sourceName,
		RequestID:     requestID,
	}
	// A failed save never fails the request that computed the result.
	if err := h.store.Save(ctx, row); err != nil {
		h.logger.Error().Err(err).Str("request_id", requestID).Msg("history save failed")
	}
}

func (h *Handler) emitIncident(ctx context.Context, result metrics.Result, trace incident.Trace) {
	if h.sink == nil {
		return
	}
	record, ok := incident.Evaluate(result, h.opts.MinSeverity, trace)
	if !ok {
		return
	}
	if _, err := h.sink.Write(ctx, record); err != nil {
		h.logger.Error().Err(err).Msg("incident write failed")
	}
}

func (h *Handler) recordIngest(sourceName string, meta source.Meta) {
	payload := &lastIngestPayload{
		Source:    sourceName,
		Upstream:  meta.Upstream,
		Records:   meta.Records,
		Pages:     meta.Pages,
		Retries:   meta.Retries,
		LatencyMS: meta.Latency.Milliseconds(),
		At:        time.Now().UTC().Format(time.RFC3339),
	}
	h.mu.Lock()
	h.lastIngest = payload
	h.mu.Unlock()
}

func (h *Handler) upstreamError(c *fiber.Ctx, sourceName string, err error) error {
	h.logger.Error().Err(err).Str("source", sourceName).Msg("fetch failed")
	if errors.Is(err, source.ErrIngestUnavailable) {
		return serviceUnavailable(c, err)
	}
	return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: err.Error()})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
}

func serviceUnavailable(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{Error: err.Error()})
}
