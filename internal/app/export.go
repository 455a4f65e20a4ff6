package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/sheldongordon4/coherence-engine/internal/storage"
)

// Export renders history rows as CSV and/or a PNG chart, oldest first,
// downsampled to the configured maximum point count.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	maxPoints := a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("storage.backend is none; nothing to export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	// Read at least as many rows as the caller asked to keep, so an
	// override above the config default is not capped before downsampling.
	readLimit := a.Config.Export.MaxDataPoints
	if maxPoints > readLimit {
		readLimit = maxPoints
	}

	rows, err := store.ReadLatest(ctx, readLimit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Msg("no history rows found for export")
		return nil
	}

	// ReadLatest is newest first; charts and CSV want chronological order.
	reverseRows(rows)
	downsampled := downsampleRows(rows, maxPoints)
	a.Logger.Info().Int("total", len(rows)).Int("exported", len(downsampled)).Msg("exporting history rows")

	if opts.CSVPath != "" {
		if err := writeRowsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeRowsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}
	return nil
}

func reverseRows(rows []storage.Row) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

func downsampleRows(rows []storage.Row, max int) []storage.Row {
	if max <= 0 || len(rows) <= max {
		return rows
	}

	result := make([]storage.Row, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeRowsCSV(path string, rows []storage.Row) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"ts_utc", "window_sec", "n", "stability", "volatility", "risk_level", "source"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.Timestamp.UTC().Format(time.RFC3339),
			strconv.Itoa(row.WindowSeconds),
			strconv.Itoa(row.SampleCount),
			formatFixed(row.Stability),
			formatFixed(row.Volatility),
			row.RiskLevel,
			row.Source,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeRowsPNG(path string, rows []storage.Row) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(rows))
	stability := make([]float64, len(rows))
	volatility := make([]float64, len(rows))
	for i, row := range rows {
		x[i] = row.Timestamp
		stability[i] = row.Stability
		volatility[i] = row.Volatility
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Stability",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Volatility",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Stability",
				XValues: x,
				YValues: stability,
			},
			chart.TimeSeries{
				Name:    "Volatility",
				XValues: x,
				YValues: volatility,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
