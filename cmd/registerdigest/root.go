package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"RegisterDigest/internal/app"
	"RegisterDigest/internal/config"
	"RegisterDigest/internal/logging"
)

const dateLayout = "2006-01-02"

var (
	cfgFile string
	envFile string
	dryRun  bool
	cfg     config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "registerdigest",
	Short: "Daily Federal Register digests by email",
	Long: `registerdigest fetches the day's Federal Register issue, summarizes the
documents each subscriber cares about and emails one digest per subscriber.

Example usage:
  registerdigest run                         # process today's issue once
  registerdigest run --date 2024-03-28       # process a specific issue
  registerdigest serve                       # run on the cron schedule with /metrics
  registerdigest export --from 2024-03-01 --to 2024-03-31 --out march.txt`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (default $REGISTER_DIGEST_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with credentials")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "log digests instead of sending email")
}

func initConfig() error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	if cfgFile != "" {
		cfg = config.LoadPath(cfgFile)
	} else {
		cfg = config.Load()
	}
	if dryRun {
		cfg.Email.Kind = config.EmailLog
	}

	logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	return nil
}

// newApplication builds the app under a context cancelled by SIGINT/SIGTERM.
func newApplication() (context.Context, *app.Application, func(), error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	cleanup := func() {
		application.Close()
		stop()
	}
	return ctx, application, cleanup, nil
}

func parseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}
