// Package storage persists the flattened history rows behind each computed
// metrics result. All backends share the same append-only contract: Init is
// idempotent, Save never overwrites, and ReadLatest returns rows newest
// first.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sheldongordon4/coherence-engine/internal/config"
)

// ErrNotConfigured indicates the store was not initialised.
var ErrNotConfigured = errors.New("storage: not configured")

// Row is the storage projection of one metrics result.
type Row struct {
	Timestamp     time.Time
	WindowSeconds int
	SampleCount   int
	Stability     float64
	Volatility    float64
	RiskLevel     string
	Source        string
	RequestID     string
}

// MetricsStore is the history persistence contract. Implementations
// auto-initialise on first use, so calling Save before Init is legal.
// ReadLatest returns up to limit rows ordered newest first; the ordering is
// uniform across every backend.
type MetricsStore interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, row Row) error
	ReadLatest(ctx context.Context, limit int) ([]Row, error)
	Close() error
}

// Open constructs the backend selected by cfg. The "none" backend yields a
// nil store; callers treat persistence as optional.
func Open(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (MetricsStore, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "csv":
		return NewCSVStore(cfg.CSVPath, logger), nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, logger)
	case "postgres":
		return NewPostgresStore(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
