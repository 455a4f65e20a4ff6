package cli

import (
	"github.com/spf13/cobra"

	"github.com/sheldongordon4/coherence-engine/internal/app"
)

var (
	sentryWindow         string
	sentrySource         string
	sentryMinLevel       string
	sentryDryRun         bool
	sentryFailOnCritical bool
)

var sentryCmd = &cobra.Command{
	Use:   "sentry",
	Short: "Run one drift evaluation and emit an incident if the gate is crossed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sentry(cmd.Context(), app.SentryOptions{
			Window:         sentryWindow,
			Source:         sentrySource,
			MinLevel:       sentryMinLevel,
			DryRun:         sentryDryRun,
			FailOnCritical: sentryFailOnCritical,
		})
	},
}

func init() {
	sentryCmd.Flags().StringVar(&sentryWindow, "window", "", "Window to evaluate, e.g. 30s, 5m, 1h (defaults to config)")
	sentryCmd.Flags().StringVar(&sentrySource, "source", "", "Data source name (defaults to config)")
	sentryCmd.Flags().StringVar(&sentryMinLevel, "min-level", "", "Minimum risk level that emits an incident (defaults to config)")
	sentryCmd.Flags().BoolVar(&sentryDryRun, "dry-run", false, "Print the incident instead of writing it")
	sentryCmd.Flags().BoolVar(&sentryFailOnCritical, "fail-on-critical", false, "Exit with code 2 when a high-risk incident is emitted")
}
