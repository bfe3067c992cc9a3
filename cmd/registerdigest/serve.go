package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipeline on the cron schedule",
	Long: `Run the pipeline whenever the configured cron expression fires and serve
Prometheus metrics on /metrics until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, application, cleanup, err := newApplication()
	if err != nil {
		return err
	}
	defer cleanup()

	return application.Serve(ctx)
}
