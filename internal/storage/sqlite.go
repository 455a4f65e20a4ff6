package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	// Pure Go SQLite driver.
	_ "modernc.org/sqlite"
)

const (
	sqliteSchema = `CREATE TABLE IF NOT EXISTS rolling_metrics (
        ts_utc      TEXT    NOT NULL,
        window_sec  INTEGER NOT NULL,
        n           INTEGER NOT NULL,
        stability   REAL    NOT NULL,
        volatility  REAL    NOT NULL,
        risk_level  TEXT    NOT NULL,
        source      TEXT    NOT NULL,
        request_id  TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_rolling_metrics_ts ON rolling_metrics(ts_utc DESC);`

	sqliteInsertSQL = `INSERT INTO rolling_metrics
        (ts_utc, window_sec, n, stability, volatility, risk_level, source, request_id)
        VALUES (?,?,?,?,?,?,?,?);`

	sqliteReadLatestSQL = `SELECT ts_utc, window_sec, n, stability, volatility, risk_level, source, request_id
        FROM rolling_metrics
        ORDER BY ts_utc DESC
        LIMIT ?;`
)

// SQLiteStore keeps history rows in a single-file SQLite database.
type SQLiteStore struct {
	db      *sql.DB
	once    sync.Once
	initErr error
	logger  zerolog.Logger
}

// NewSQLiteStore opens (creating if needed) the database file at path.
func NewSQLiteStore(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// Single writer; WAL keeps readers unblocked during appends.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite store: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "sqlite_store").Logger(),
	}, nil
}

// Init creates the schema. Idempotent; also invoked lazily by Save and
// ReadLatest.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	if err != nil {
		return fmt.Errorf("create sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	s.once.Do(func() {
		s.initErr = s.Init(ctx)
	})
	return s.initErr
}

// Save appends one row.
func (s *SQLiteStore) Save(ctx context.Context, row Row) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, sqliteInsertSQL,
		row.Timestamp.UTC().Format(time.RFC3339Nano),
		row.WindowSeconds,
		row.SampleCount,
		row.Stability,
		row.Volatility,
		row.RiskLevel,
		row.Source,
		row.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert metrics row: %w", err)
	}
	return nil
}

// ReadLatest returns up to limit rows, newest first.
func (s *SQLiteStore) ReadLatest(ctx context.Context, limit int) ([]Row, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, sqliteReadLatestSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("read latest metrics: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0, limit)
	for rows.Next() {
		var (
			row       Row
			ts        string
			requestID sql.NullString
		)
		if err := rows.Scan(&ts, &row.WindowSeconds, &row.SampleCount, &row.Stability, &row.Volatility, &row.RiskLevel, &row.Source, &requestID); err != nil {
			return nil, err
		}
		row.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse ts_utc: %w", err)
		}
		if requestID.Valid {
			row.RequestID = requestID.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ MetricsStore = (*SQLiteStore)(nil)
