package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/sheldongordon4/coherence-engine/internal/httpapi"
	"github.com/sheldongordon4/coherence-engine/internal/incident"
	"github.com/sheldongordon4/coherence-engine/internal/metrics"
	"github.com/sheldongordon4/coherence-engine/internal/storage"
)

// ErrCriticalDrift signals that a high-risk incident was emitted while
// --fail-on-critical was set. The CLI maps it to exit code 2.
var ErrCriticalDrift = errors.New("critical drift incident emitted")

// Sentry runs one fetch-compute-evaluate cycle and reports the outcome on
// stdout. With DryRun the record is printed instead of written.
func (a *App) Sentry(ctx context.Context, opts SentryOptions) error {
	windowExpr := opts.Window
	if windowExpr == "" {
		windowExpr = a.Config.Metrics.DefaultWindow
	}
	windowSec, err := httpapi.ParseWindow(windowExpr)
	if err != nil {
		return err
	}

	sourceName := opts.Source
	if sourceName == "" {
		sourceName = a.Config.Metrics.DefaultSource
	}
	provider, err := a.newResolver().Lookup(sourceName)
	if err != nil {
		return err
	}

	minSeverity := a.Config.MinSeverity()
	if opts.MinLevel != "" {
		minSeverity, err = metrics.ParseRiskLevel(opts.MinLevel)
		if err != nil {
			return fmt.Errorf("invalid --min-level: %w", err)
		}
	}

	pipeline, err := a.newPipeline()
	if err != nil {
		return err
	}

	series, meta, err := provider.Fetch(ctx, windowSec)
	if err != nil {
		return fmt.Errorf("fetch series: %w", err)
	}
	result := pipeline.Run(series, windowSec)

	a.persistResult(ctx, result, sourceName)

	fmt.Fprintf(os.Stdout, "window=%s source=%s n=%d stability=%s volatility=%s risk=%s trend=%s\n",
		incident.WindowLabel(windowSec), sourceName, result.SampleCount,
		formatFixed(result.Stability), formatFixed(result.Volatility),
		result.RiskLevel, result.Trend)

	record, ok := incident.Evaluate(result, minSeverity, incident.Trace{
		Source:   a.Config.App.Name,
		Upstream: meta.Upstream,
	})
	if !ok {
		fmt.Fprintln(os.Stdout, "no incident emitted")
		return nil
	}

	if opts.DryRun {
		payload, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal incident: %w", err)
		}
		fmt.Fprintf(os.Stdout, "dry run; incident not written:\n%s\n", payload)
	} else {
		sink := a.newSink()
		if sink == nil {
			return errors.New("incidents.dir not configured; cannot write incident")
		}
		path, err := sink.Write(ctx, record)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "incident written: %s\n", path)
	}

	if opts.FailOnCritical && record.RiskLevel == metrics.RiskHigh {
		return ErrCriticalDrift
	}
	return nil
}

// persistResult appends the run to history when a backend is configured.
// Failures are logged; a sentry run never fails on persistence.
func (a *App) persistResult(ctx context.Context, result metrics.Result, sourceName string) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		a.Logger.Error().Err(err).Msg("failed to open history store")
		return
	}
	if store == nil {
		return
	}
	defer closeStore()

	row := storage.Row{
		Timestamp:     result.ComputedAt,
		WindowSeconds: result.WindowSeconds,
		SampleCount:   result.SampleCount,
		Stability:     result.Stability,
		Volatility:    result.Volatility,
		RiskLevel:     string(result.RiskLevel),
		Source:        sourceName,
		RequestID:     uuid.NewString(),
	}
	if err := store.Save(ctx, row); err != nil {
		a.Logger.Error().Err(err).Msg("failed to persist metrics row")
	}
}
