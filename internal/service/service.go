package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sheldongordon4/coherence-engine/internal/incident"
	"github.com/sheldongordon4/coherence-engine/internal/metrics"
	"github.com/sheldongordon4/coherence-engine/internal/scheduler"
	"github.com/sheldongordon4/coherence-engine/internal/source"
	"github.com/sheldongordon4/coherence-engine/internal/storage"
)

// Options fix the per-run parameters of the watch loop.
type Options struct {
	WindowSeconds int
	MinSeverity   metrics.RiskLevel
	ServiceName   string
}

// Service orchestrates one watch cycle: fetch a series, compute metrics,
// persist the row, and evaluate the incident gate.
type Service struct {
	scheduler *scheduler.Scheduler
	provider  source.Provider
	pipeline  *metrics.Pipeline
	store     storage.MetricsStore
	sink      incident.Sink
	opts      Options
	logger    zerolog.Logger
}

// New constructs the watch service. store and sink may be nil; the cycle
// then computes and logs without persisting or emitting.
func New(sched *scheduler.Scheduler, provider source.Provider, pipeline *metrics.Pipeline, store storage.MetricsStore, sink incident.Sink, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		provider:  provider,
		pipeline:  pipeline,
		store:     store,
		sink:      sink,
		opts:      opts,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled watch loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket executes one watch cycle for a bucket. A fetch failure
// fails the cycle; persistence and incident emission are best-effort and
// only log.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	series, meta, err := s.provider.Fetch(ctx, s.opts.WindowSeconds)
	if err != nil {
		return fmt.Errorf("fetch series: %w", err)
	}

	result := s.pipeline.Run(series, s.opts.WindowSeconds)
	requestID := uuid.NewString()

	if s.store != nil {
		row := storage.Row{
			Timestamp:     result.ComputedAt,
			WindowSeconds: result.WindowSeconds,
			SampleCount:   result.SampleCount,
			Stability:     result.Stability,
			Volatility:    result.Volatility,
			RiskLevel:     string(result.RiskLevel),
			Source:        s.provider.Name(),
			RequestID:     requestID,
		}
		if err := s.store.Save(ctx, row); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to persist metrics row")
		}
	}

	s.logger.Info().Time("bucket", bucket).
		Int("n", result.SampleCount).
		Float64("stability", result.Stability).
		Float64("volatility", result.Volatility).
		Str("risk", string(result.RiskLevel)).
		Str("trend", string(result.Trend)).
		Msg("watch cycle recorded")

	s.evaluateIncident(ctx, result, meta, bucket)
	return nil
}

func (s *Service) evaluateIncident(ctx context.Context, result metrics.Result, meta source.Meta, bucket time.Time) {
	if s.sink == nil {
		return
	}

	trace := incident.Trace{
		Source:   s.opts.ServiceName,
		Upstream: meta.Upstream,
	}
	record, ok := incident.Evaluate(result, s.opts.MinSeverity, trace)
	if !ok {
		s.logger.Debug().Time("bucket", bucket).Str("risk", string(result.RiskLevel)).Msg("no incident emitted")
		return
	}

	path, err := s.sink.Write(ctx, record)
	if err != nil {
		s.logger.Error().Err(err).Time("bucket", bucket).Msg("failed to write incident")
		return
	}
	s.logger.Warn().Time("bucket", bucket).
		Str("risk", string(result.RiskLevel)).
		Str("path", path).
		Msg("trust continuity incident emitted")
}
