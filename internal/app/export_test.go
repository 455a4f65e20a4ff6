package app

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sheldongordon4/coherence-engine/internal/config"
	"github.com/sheldongordon4/coherence-engine/internal/storage"
)

func newExportApp(t *testing.T, maxDataPoints, seedRows int) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "rolling_store.csv")

	store := storage.NewCSVStore(csvPath, zerolog.Nop())
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < seedRows; i++ {
		row := storage.Row{
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			WindowSeconds: 3600,
			SampleCount:   i,
			Stability:     0.8,
			Volatility:    0.05,
			RiskLevel:     "low",
			Source:        "mock",
		}
		if err := store.Save(context.Background(), row); err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}
	}

	cfg := &config.Config{
		Storage: config.StorageConfig{Backend: "csv", CSVPath: csvPath},
		Export:  config.ExportConfig{MaxDataPoints: maxDataPoints},
	}
	return NewApp(cfg, zerolog.Nop()), dir
}

func readExportedCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}
	return records
}

func TestExportHonorsMaxPointsOverride(t *testing.T) {
	a, dir := newExportApp(t, 5, 10)
	out := filepath.Join(dir, "export.csv")

	err := a.Export(context.Background(), ExportOptions{CSVPath: out, MaxPoints: 10})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	records := readExportedCSV(t, out)
	// An override above the config default must export that many rows.
	if len(records) != 11 {
		t.Fatalf("expected header plus 10 rows, got %d records", len(records))
	}

	// Chronological order: oldest row first.
	first, err := strconv.Atoi(records[1][2])
	if err != nil {
		t.Fatalf("failed to parse n column: %v", err)
	}
	last, err := strconv.Atoi(records[10][2])
	if err != nil {
		t.Fatalf("failed to parse n column: %v", err)
	}
	if first != 0 || last != 9 {
		t.Fatalf("expected rows 0..9 oldest first, got first=%d last=%d", first, last)
	}
}

func TestExportDefaultsToConfigMaxPoints(t *testing.T) {
	a, dir := newExportApp(t, 5, 10)
	out := filepath.Join(dir, "export.csv")

	if err := a.Export(context.Background(), ExportOptions{CSVPath: out}); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	records := readExportedCSV(t, out)
	if len(records) != 6 {
		t.Fatalf("expected header plus 5 rows, got %d records", len(records))
	}
}

func TestExportRequiresAnOutput(t *testing.T) {
	a, _ := newExportApp(t, 5, 1)
	if err := a.Export(context.Background(), ExportOptions{}); err == nil {
		t.Fatal("expected an error when neither --csv nor --png is given")
	}
}

func TestDownsampleRowsKeepsEndpoints(t *testing.T) {
	rows := make([]storage.Row, 12)
	for i := range rows {
		rows[i] = storage.Row{SampleCount: i}
	}

	down := downsampleRows(rows, 5)
	if len(down) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(down))
	}
	if down[0].SampleCount != 0 || down[4].SampleCount != 11 {
		t.Fatalf("downsampling must keep first and last rows, got %d..%d", down[0].SampleCount, down[4].SampleCount)
	}

	// Fewer rows than the cap pass through untouched.
	if got := downsampleRows(rows, 50); len(got) != len(rows) {
		t.Fatalf("expected passthrough, got %d rows", len(got))
	}
}
