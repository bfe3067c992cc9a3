package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/metrics"
	"RegisterDigest/internal/ports"
)

// Run outcomes recorded in metrics.
const (
	OutcomeCompleted    = "completed"
	OutcomeNotPublished = "not_published"
	OutcomeFailed       = "failed"
)

// PipelineDeps wires the driven adapters and stages into the daily pipeline.
type PipelineDeps struct {
	Index      ports.DocumentIndex
	Store      ports.SubscriberStore
	Assembler  *BatchAssembler
	Planner    *TokenBudgetPlanner
	Summarizer *Summarizer
	Composer   *DigestComposer
	Sink       ports.EmailSink
	Logger     *slog.Logger
	Metrics    *metrics.Collector

	// CutoffHourUTC: runs before this hour target the previous day.
	CutoffHourUTC int
	// Concurrency bounds subscribers processed at once.
	Concurrency int
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunID            string
	Date             time.Time
	Published        bool
	Subscribers      int
	Delivered        int
	DeliveryFailures int
	Summaries        int
	Placeholders     int
	SummaryFailures  int
}

// Pipeline implements the daily digest workflow.
type Pipeline struct {
	index       ports.DocumentIndex
	store       ports.SubscriberStore
	assembler   *BatchAssembler
	planner     *TokenBudgetPlanner
	summarizer  *Summarizer
	composer    *DigestComposer
	sink        ports.EmailSink
	logger      *slog.Logger
	metrics     *metrics.Collector
	cutoff      int
	concurrency int
	now         func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	concurrency := deps.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		index:       deps.Index,
		store:       deps.Store,
		assembler:   deps.Assembler,
		planner:     deps.Planner,
		summarizer:  deps.Summarizer,
		composer:    deps.Composer,
		sink:        deps.Sink,
		logger:      logger.With("component", "pipeline"),
		metrics:     deps.Metrics,
		cutoff:      deps.CutoffHourUTC,
		concurrency: concurrency,
		now:         now,
	}
}

// ProcessDay runs the pipeline for the publication date derived from trigger.
func (p *Pipeline) ProcessDay(ctx context.Context, trigger time.Time) (RunReport, error) {
	return p.Run(ctx, domain.PublicationDate(trigger, p.cutoff))
}

// Run processes the issue for date: fetch it, summarize per subscriber and
// interest, and deliver one digest per active subscriber. A day without an
// issue is a normal outcome and sends nothing.
func (p *Pipeline) Run(ctx context.Context, date time.Time) (RunReport, error) {
	report := RunReport{RunID: uuid.NewString(), Date: date}
	logger := p.logger.With("run_id", report.RunID, "date", date.Format(dateLayout))
	logger.Info("pipeline run started")

	day, err := p.index.FetchDay(ctx, date)
	if errors.Is(err, domain.ErrNotPublished) {
		logger.Info("no issue published, nothing to send")
		p.finish(OutcomeNotPublished)
		return report, nil
	}
	if err != nil {
		p.finish(OutcomeFailed)
		return report, fmt.Errorf("fetch issue: %w", err)
	}
	report.Published = true

	roster, err := p.store.LoadRoster(ctx)
	if err != nil {
		var integrity *domain.DataIntegrityError
		if !errors.As(err, &integrity) {
			p.finish(OutcomeFailed)
			return report, fmt.Errorf("load subscribers: %w", err)
		}
		for _, rowErr := range flatten(err) {
			logger.Warn("skipping invalid store row", "error", rowErr)
		}
	}

	resolver := NewInterestResolver(roster.Interests)
	active := roster.Active()
	report.Subscribers = len(active)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, sub := range active {
		g.Go(func() error {
			result, err := p.processSubscriber(gctx, logger, day, resolver, sub)
			mu.Lock()
			report.merge(result)
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		p.finish(OutcomeFailed)
		return report, fmt.Errorf("process subscribers: %w", err)
	}

	logger.Info("pipeline run finished",
		"subscribers", report.Subscribers,
		"delivered", report.Delivered,
		"delivery_failures", report.DeliveryFailures,
		"placeholders", report.Placeholders)
	p.finish(OutcomeCompleted)
	return report, nil
}

// processSubscriber builds and sends one digest. Only cancellation is
// returned as an error; summarization and delivery failures are absorbed.
func (p *Pipeline) processSubscriber(ctx context.Context, logger *slog.Logger, day domain.PublicationDay, resolver *InterestResolver, sub domain.Subscriber) (RunReport, error) {
	var result RunReport
	logger = logger.With("subscriber", sub.Email)

	sections := make([]domain.InterestSummary, 0, len(sub.Interests))
	var appendix strings.Builder
	seen := make(map[string]struct{})

	for _, interest := range sub.Interests {
		agencies := resolver.AgenciesFor(interest)
		batch, err := p.assembler.Assemble(ctx, day, interest, agencies)
		if err != nil {
			return result, err
		}

		for _, doc := range batch.Documents {
			if _, ok := seen[doc.Number]; ok {
				continue
			}
			seen[doc.Number] = struct{}{}
			appendix.WriteString(FormatAppendixEntry(doc))
		}

		summary, err := p.summarize(ctx, logger, batch)
		if err != nil {
			return result, err
		}
		switch {
		case !summary.Placeholder:
			result.Summaries++
		case !batch.Empty():
			result.SummaryFailures++
			result.Placeholders++
		default:
			result.Placeholders++
		}
		sections = append(sections, domain.InterestSummary{Interest: interest, Summary: summary})
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	digest := p.composer.Compose(sub, day.Date, sections, appendix.String())
	if err := p.sink.Send(ctx, digest); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		logger.Warn("digest delivery failed", "error", err)
		p.metrics.RecordDelivery("failed")
		result.DeliveryFailures++
		return result, nil
	}

	logger.Debug("digest delivered", "interests", len(sections))
	p.metrics.RecordDelivery("sent")
	result.Delivered++
	return result, nil
}

// summarize returns the model summary or the placeholder. Empty batches,
// batches over budget and exhausted retries all degrade to the placeholder.
func (p *Pipeline) summarize(ctx context.Context, logger *slog.Logger, batch domain.AbstractBatch) (domain.Summary, error) {
	logger = logger.With("interest", batch.Interest)
	placeholder := domain.NoDocumentsSummary(batch.Interest)

	if batch.Empty() {
		logger.Debug("no documents for interest")
		p.metrics.RecordSummary("placeholder", 0)
		return placeholder, nil
	}

	plan := p.planner.Plan(batch.Text)
	batch.TokenCount = plan.TokenCount
	if !plan.Admitted {
		logger.Warn("batch exceeds token budget, using placeholder",
			"tokens", batch.TokenCount,
			"target", plan.TargetSize,
			"max_tokens", p.planner.Policy().MaxTokens)
		p.metrics.RecordSummary("failed", 0)
		return placeholder, nil
	}

	started := time.Now()
	text, err := p.summarizer.Summarize(ctx, batch.Interest, plan, batch.Text)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Summary{}, ctx.Err()
		}
		logger.Warn("summarization failed, using placeholder", "error", err)
		p.metrics.RecordSummary("failed", time.Since(started).Seconds())
		return placeholder, nil
	}

	logger.Debug("interest summarized", "tokens", batch.TokenCount, "target", plan.TargetSize)
	p.metrics.RecordSummary("summarized", time.Since(started).Seconds())
	return domain.Summary{Text: text}, nil
}

func (p *Pipeline) finish(outcome string) {
	p.metrics.RecordRun(outcome, float64(p.now().Unix()))
}

func (r *RunReport) merge(o RunReport) {
	r.Delivered += o.Delivered
	r.DeliveryFailures += o.DeliveryFailures
	r.Summaries += o.Summaries
	r.Placeholders += o.Placeholders
	r.SummaryFailures += o.SummaryFailures
}

func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
