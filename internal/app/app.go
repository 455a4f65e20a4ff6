package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/sheldongordon4/coherence-engine/internal/config"
	"github.com/sheldongordon4/coherence-engine/internal/httpapi"
	"github.com/sheldongordon4/coherence-engine/internal/incident"
	"github.com/sheldongordon4/coherence-engine/internal/metrics"
	"github.com/sheldongordon4/coherence-engine/internal/scheduler"
	"github.com/sheldongordon4/coherence-engine/internal/service"
	"github.com/sheldongordon4/coherence-engine/internal/source"
	"github.com/sheldongordon4/coherence-engine/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newPipeline() (*metrics.Pipeline, error) {
	return metrics.NewPipeline(a.Config.Metrics.Thresholds(), a.Config.Metrics.RiskRule, a.Logger)
}

func (a *App) newResolver() *source.Resolver {
	providers := []source.Provider{
		source.NewMock(a.Config.Metrics.MockPath, a.Config.Metrics.MockScale, a.Logger),
	}
	if a.Config.Darshan.BaseURL != "" {
		providers = append(providers, source.NewDarshan(source.DarshanOptions{
			BaseURL:       a.Config.Darshan.BaseURL,
			APIKey:        a.Config.Darshan.APIKey,
			InputScale:    a.Config.Darshan.InputScale,
			PageSize:      a.Config.Darshan.PageSize,
			Timeout:       a.Config.Darshan.RequestTimeout,
			RetryAttempts: a.Config.Darshan.RetryAttempts,
			RetryBaseWait: a.Config.Darshan.RetryBaseWait,
			RetryMaxWait:  a.Config.Darshan.RetryMaxWait,
		}, a.Logger))
	}
	return source.NewResolver(providers...)
}

func (a *App) newSink() incident.Sink {
	if a.Config.Incidents.Dir == "" {
		return nil
	}
	return incident.NewFileSink(a.Config.Incidents.Dir, a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.MetricsStore, func(), error) {
	store, err := storage.Open(ctx, a.Config.Storage, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, nil
	}
	return store, func() { _ = store.Close() }, nil
}

func (a *App) defaultWindowSeconds() (int, error) {
	seconds, err := httpapi.ParseWindow(a.Config.Metrics.DefaultWindow)
	if err != nil {
		return 0, fmt.Errorf("metrics.default_window: %w", err)
	}
	return seconds, nil
}

// Serve runs the HTTP API until interrupted.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	windowSec, err := a.defaultWindowSeconds()
	if err != nil {
		return err
	}
	pipeline, err := a.newPipeline()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("storage.backend is none; history routes disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	handler := httpapi.NewHandler(pipeline, a.newResolver(), store, a.newSink(), httpapi.Options{
		ServiceName:          a.Config.App.Name,
		Environment:          a.Config.App.Environment,
		DefaultWindowSeconds: windowSec,
		DefaultSource:        a.Config.Metrics.DefaultSource,
		IncludeLegacy:        a.Config.Metrics.IncludeLegacyNames,
		MinSeverity:          a.Config.MinSeverity(),
		PersistenceBackend:   a.Config.Storage.Backend,
	}, a.Logger)

	server := httpapi.NewServer(handler, a.Config.Server.Host, a.Config.Server.Port, a.Logger)

	a.Logger.Info().Msg("starting http api")
	err = server.Listen(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("http api terminated with error")
		return err
	}
	a.Logger.Info().Msg("http api stopped")
	return nil
}

// Watch runs the long-running scheduled watch loop.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	windowSec, err := a.defaultWindowSeconds()
	if err != nil {
		return err
	}
	pipeline, err := a.newPipeline()
	if err != nil {
		return err
	}

	provider, err := a.newResolver().Lookup(a.Config.Metrics.DefaultSource)
	if err != nil {
		return fmt.Errorf("metrics.default_source: %w", err)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("storage.backend is none; watch cycles will not persist history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:      a.Config.Scheduler.Interval,
		AlignToBucket: a.Config.Scheduler.AlignToBucket,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	svc := service.New(sched, provider, pipeline, store, a.newSink(), service.Options{
		WindowSeconds: windowSec,
		MinSeverity:   a.Config.MinSeverity(),
		ServiceName:   a.Config.App.Name,
	}, a.Logger)

	a.Logger.Info().Msg("starting watch loop")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch loop terminated with error")
		return err
	}
	a.Logger.Info().Msg("watch loop stopped")
	return nil
}

// SentryOptions configure one drift sentry evaluation.
type SentryOptions struct {
	Window         string
	Source         string
	MinLevel       string
	DryRun         bool
	FailOnCritical bool
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting history rows.
type ExportOptions struct {
	CSVPath   string
	PNGPath   string
	MaxPoints int
}
