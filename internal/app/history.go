package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// History prints recent persisted rows, newest first.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("storage.backend is none; nothing to show")
	}
	if closeStore != nil {
		defer closeStore()
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := store.ReadLatest(ctx, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no history rows found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tWindow\tN\tStability\tVolatility\tRisk\tSource")

	for _, row := range rows {
		fmt.Fprintf(
			writer,
			"%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			row.Timestamp.UTC().Format(time.RFC3339),
			row.WindowSeconds,
			row.SampleCount,
			formatFixed(row.Stability),
			formatFixed(row.Volatility),
			row.RiskLevel,
			row.Source,
		)
	}

	writer.Flush()
	return nil
}

func formatFixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}
