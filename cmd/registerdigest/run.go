package main

import (
	"time"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process one issue and send the digests",
	Long: `Process a single Federal Register issue.

Without --date the issue is derived from the current time: runs before the
configured cutoff hour (UTC) target the previous day.`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("date", "", "issue date to process (YYYY-MM-DD)")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	var date time.Time
	if value, _ := cmd.Flags().GetString("date"); value != "" {
		parsed, err := parseDate(value)
		if err != nil {
			return err
		}
		date = parsed
	}

	ctx, application, cleanup, err := newApplication()
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := application.Run(ctx, date)
	if err != nil {
		return err
	}

	logger.Info("run complete",
		"run_id", report.RunID,
		"date", report.Date.Format(dateLayout),
		"published", report.Published,
		"subscribers", report.Subscribers,
		"delivered", report.Delivered,
		"delivery_failures", report.DeliveryFailures)
	return nil
}
