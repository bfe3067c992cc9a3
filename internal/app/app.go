package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"RegisterDigest/internal/config"
	"RegisterDigest/internal/infrastructure/email"
	"RegisterDigest/internal/infrastructure/federalregister"
	"RegisterDigest/internal/infrastructure/llm"
	"RegisterDigest/internal/infrastructure/scheduler"
	"RegisterDigest/internal/infrastructure/storage"
	"RegisterDigest/internal/infrastructure/tokenizer"
	"RegisterDigest/internal/logging"
	"RegisterDigest/internal/metrics"
	"RegisterDigest/internal/ports"
	"RegisterDigest/internal/retry"
	"RegisterDigest/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *metrics.Collector
	pipeline *usecase.Pipeline
	exporter *usecase.Exporter
	closers  []func()
	// digestOut receives digests when email.kind is log.
	digestOut io.Writer
	// completionErr is set when no completion client could be built.
	completionErr error
}

// Option customizes an Application.
type Option func(*Application)

// WithDigestWriter sends log-sink digests to w instead of stdout.
func WithDigestWriter(w io.Writer) Option {
	return func(a *Application) { a.digestOut = w }
}

// New builds the application from cfg. The completion client is only
// required when the pipeline needs it, so export works without an API key.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts ...Option) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New(), digestOut: os.Stdout}
	for _, opt := range opts {
		opt(a)
	}

	index, err := federalregister.NewClient(federalregister.Options{
		BaseURL:           cfg.Publication.BaseURL,
		HTTPClient:        &http.Client{Timeout: cfg.Publication.Timeout},
		RequestsPerSecond: cfg.Publication.RequestsPerSecond,
		CacheSize:         cfg.Publication.DocumentCacheSize,
		Logger:            baseLogger.With("component", "federalregister"),
	})
	if err != nil {
		return nil, fmt.Errorf("publication client: %w", err)
	}

	store, err := a.buildStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	sink, err := a.buildSink()
	if err != nil {
		a.Close()
		return nil, err
	}

	var completion ports.CompletionClient
	if client, err := llm.NewOpenAIClient(cfg.Completion); err != nil {
		a.completionErr = fmt.Errorf("completion client: %w", err)
	} else {
		completion = client
	}

	assembler := usecase.NewBatchAssembler(index, cfg.Publication.BoilerplateMarkers,
		baseLogger.With("component", "assembler"), a.metrics)
	budget := usecase.BudgetPolicy{
		SummaryRatio:       cfg.Budget.SummaryRatio,
		MaxTokens:          cfg.Budget.MaxTokens,
		ExpansionThreshold: cfg.Budget.ExpansionThreshold,
		ExpansionFactor:    cfg.Budget.ExpansionFactor,
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Index:     index,
		Store:     store,
		Assembler: assembler,
		Planner:   usecase.NewTokenBudgetPlanner(tokenizer.ForModel(cfg.Completion.Model, baseLogger), budget),
		Summarizer: usecase.NewSummarizer(completion, usecase.SummarizerOptions{
			Model:          cfg.Completion.Model,
			AttemptTimeout: cfg.Completion.RequestTimeout,
			Retry: retry.Policy{
				MaxAttempts:         cfg.Retry.MaxAttempts,
				InitialDelay:        cfg.Retry.InitialDelay,
				MaxDelay:            cfg.Retry.MaxDelay,
				Multiplier:          cfg.Retry.Multiplier,
				RandomizationFactor: cfg.Retry.RandomizationFactor,
			},
		}, baseLogger, a.metrics),
		Composer:      usecase.NewDigestComposer(cfg.Email.SubjectPrefix, cfg.Email.Footer),
		Sink:          sink,
		Logger:        baseLogger,
		Metrics:       a.metrics,
		CutoffHourUTC: cfg.Scheduler.CutoffHourUTC,
		Concurrency:   cfg.Pipeline.Concurrency,
	})
	a.exporter = usecase.NewExporter(index, store, assembler, baseLogger)

	return a, nil
}

func (a *Application) buildStore(ctx context.Context) (ports.SubscriberStore, error) {
	switch a.cfg.Store.Kind {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, a.cfg.Store.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		return storage.NewPostgresStore(pool), nil
	case config.StoreFile:
		return storage.NewFileStore(a.cfg.Store.File.Path), nil
	default:
		store, err := storage.NewAirtableStore(a.cfg.Store.Airtable)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func (a *Application) buildSink() (ports.EmailSink, error) {
	switch a.cfg.Email.Kind {
	case config.EmailSendGrid:
		sink, err := email.NewSendGridSink(a.cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("sendgrid sink: %w", err)
		}
		return sink, nil
	case config.EmailSMTP:
		sink, err := email.NewSMTPSink(a.cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("smtp sink: %w", err)
		}
		return sink, nil
	default:
		return email.NewLogSink(a.digestOut, a.logger.With("component", "email.log")), nil
	}
}

// Run executes the pipeline once. A zero date means "derive from now".
func (a *Application) Run(ctx context.Context, date time.Time) (usecase.RunReport, error) {
	if a.completionErr != nil {
		return usecase.RunReport{}, a.completionErr
	}
	if date.IsZero() {
		return a.pipeline.ProcessDay(ctx, time.Now())
	}
	return a.pipeline.Run(ctx, date)
}

// Export writes the formatted documents for from..to into w.
func (a *Application) Export(ctx context.Context, from, to time.Time, w io.Writer) (usecase.ExportReport, error) {
	return a.exporter.Export(ctx, from, to, w)
}

// Serve runs the pipeline on the configured cron schedule and exposes
// /metrics until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if a.completionErr != nil {
		return a.completionErr
	}
	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(),
		a.logger.With("component", "cron"))
	sched := usecase.NewScheduler(driver, a.pipeline, a.logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("metrics listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if err := sched.Start(ctx); err != nil {
		_ = srv.Close()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if next, err := driver.Next(time.Now()); err != nil {
		a.logger.Warn("cannot compute next run", "error", err)
	} else {
		a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression, "next", next)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("metrics server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("metrics shutdown", "error", err)
	}
	return runErr
}

// Close releases pooled connections.
func (a *Application) Close() {
	for _, c := range a.closers {
		c()
	}
	a.closers = nil
}
