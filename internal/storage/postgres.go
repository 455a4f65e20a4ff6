package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/sheldongordon4/coherence-engine/internal/config"
)

const (
	pgSchemaSQL = `CREATE TABLE IF NOT EXISTS rolling_metrics (
        id          BIGSERIAL PRIMARY KEY,
        ts_utc      TIMESTAMPTZ NOT NULL,
        window_sec  INTEGER     NOT NULL,
        n           INTEGER     NOT NULL,
        stability   DOUBLE PRECISION NOT NULL,
        volatility  DOUBLE PRECISION NOT NULL,
        risk_level  TEXT        NOT NULL,
        source      TEXT        NOT NULL,
        request_id  TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_rolling_metrics_ts ON rolling_metrics(ts_utc DESC);`

	pgInsertSQL = `INSERT INTO rolling_metrics (
        ts_utc, window_sec, n, stability, volatility, risk_level, source, request_id
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`

	pgReadLatestSQL = `SELECT ts_utc, window_sec, n, stability, volatility, risk_level, source, request_id
    FROM rolling_metrics
    ORDER BY ts_utc DESC, id DESC
    LIMIT $1;`
)

// PostgresStore keeps history rows in PostgreSQL, for deployments where
// several engine instances share one history.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore configures a connection pool from runtime settings.
func NewPostgresStore(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse storage dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	store := &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("component", "postgres_store").Logger(),
	}
	if err := store.Init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Init creates the schema. Idempotent.
func (s *PostgresStore) Init(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgSchemaSQL); err != nil {
		return fmt.Errorf("create metrics schema: %w", err)
	}
	return nil
}

// Save appends one row.
func (s *PostgresStore) Save(ctx context.Context, row Row) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var requestID interface{}
	if row.RequestID != "" {
		requestID = row.RequestID
	}

	_, execErr := pool.Exec(ctx, pgInsertSQL,
		row.Timestamp,
		row.WindowSeconds,
		row.SampleCount,
		row.Stability,
		row.Volatility,
		row.RiskLevel,
		row.Source,
		requestID,
	)
	if execErr != nil {
		return fmt.Errorf("insert metrics row: %w", execErr)
	}
	return nil
}

// ReadLatest returns up to limit rows, newest first.
func (s *PostgresStore) ReadLatest(ctx context.Context, limit int) ([]Row, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgReadLatestSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("read latest metrics: %w", queryErr)
	}
	defer rows.Close()

	out := make([]Row, 0, limit)
	for rows.Next() {
		var (
			row       Row
			requestID sql.NullString
		)
		if err := rows.Scan(&row.Timestamp, &row.WindowSeconds, &row.SampleCount, &row.Stability, &row.Volatility, &row.RiskLevel, &row.Source, &requestID); err != nil {
			return nil, err
		}
		if requestID.Valid {
			row.RequestID = requestID.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

var _ MetricsStore = (*PostgresStore)(nil)
