package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var csvHeader = []string{"ts_utc", "window_sec", "n", "stability", "volatility", "risk_level", "source", "request_id"}

// CSVStore appends history rows to a headered CSV file. A mutex serialises
// writers so concurrent saves cannot interleave within one line.
type CSVStore struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewCSVStore constructs the store; the file is created on first use.
func NewCSVStore(path string, logger zerolog.Logger) *CSVStore {
	return &CSVStore{
		path:   path,
		logger: logger.With().Str("component", "csv_store").Logger(),
	}
}

// Init writes the header if the file does not exist yet. Safe to call any
// number of times.
func (s *CSVStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked(ctx)
}

func (s *CSVStore) initLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create csv dir: %w", err)
		}
	}

	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("create csv store: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	return writer.Error()
}

// Save appends one row. The file is opened in append mode per call, so a
// whole line lands atomically with respect to other savers in this process.
func (s *CSVStore) Save(ctx context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.initLocked(ctx); err != nil {
		return err
	}

	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open csv store: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	record := []string{
		row.Timestamp.UTC().Format(time.RFC3339Nano),
		strconv.Itoa(row.WindowSeconds),
		strconv.Itoa(row.SampleCount),
		formatFloat(row.Stability),
		formatFloat(row.Volatility),
		row.RiskLevel,
		row.Source,
		row.RequestID,
	}
	if err := writer.Write(record); err != nil {
		return fmt.Errorf("append csv row: %w", err)
	}
	writer.Flush()
	return writer.Error()
}

// ReadLatest returns up to limit rows, newest first.
func (s *CSVStore) ReadLatest(ctx context.Context, limit int) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.initLocked(ctx); err != nil {
		return nil, err
	}

	file, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open csv store: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv store: %w", err)
	}
	if len(records) <= 1 {
		return []Row{}, nil
	}

	records = records[1:] // drop header
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}

	rows := make([]Row, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		row, err := parseCSVRow(records[i])
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Close implements MetricsStore; the CSV store holds no resources between
// calls.
func (s *CSVStore) Close() error { return nil }

func parseCSVRow(record []string) (Row, error) {
	if len(record) != len(csvHeader) {
		return Row{}, fmt.Errorf("malformed csv row: %d fields", len(record))
	}

	ts, err := time.Parse(time.RFC3339Nano, record[0])
	if err != nil {
		return Row{}, fmt.Errorf("parse ts_utc: %w", err)
	}
	windowSec, err := strconv.Atoi(record[1])
	if err != nil {
		return Row{}, fmt.Errorf("parse window_sec: %w", err)
	}
	n, err := strconv.Atoi(record[2])
	if err != nil {
		return Row{}, fmt.Errorf("parse n: %w", err)
	}
	stability, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return Row{}, fmt.Errorf("parse stability: %w", err)
	}
	volatility, err := strconv.ParseFloat(record[4], 64)
	if err != nil {
		return Row{}, fmt.Errorf("parse volatility: %w", err)
	}

	return Row{
		Timestamp:     ts,
		WindowSeconds: windowSec,
		SampleCount:   n,
		Stability:     stability,
		Volatility:    volatility,
		RiskLevel:     record[5],
		Source:        record[6],
		RequestID:     record[7],
	}, nil
}

// formatFloat uses the shortest representation that round-trips exactly.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var _ MetricsStore = (*CSVStore)(nil)
