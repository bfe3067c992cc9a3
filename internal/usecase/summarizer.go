package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/metrics"
	"RegisterDigest/internal/ports"
	"RegisterDigest/internal/retry"
)

const systemInstructionTemplate = "You are an expert on US Government who will read abstracts from the " +
	"Federal Register and generate easy to understand summaries using less than %d tokens. " +
	"Please use proper grammar and punctuation, write in paragraph form, and avoid run-on sentences."

// SystemInstruction is the system message for a summary of targetSize tokens.
func SystemInstruction(targetSize int) string {
	return fmt.Sprintf(systemInstructionTemplate, targetSize)
}

// RetryableCompletion reports whether a completion error is worth another attempt.
func RetryableCompletion(err error) bool {
	return errors.Is(err, domain.ErrSummarizationTransient) || errors.Is(err, context.DeadlineExceeded)
}

// SummarizerOptions tune the completion calls.
type SummarizerOptions struct {
	Model string
	// AttemptTimeout bounds each completion attempt; zero leaves it to ctx.
	AttemptTimeout time.Duration
	Retry          retry.Policy
	RetryOptions   []retry.Option
}

// Summarizer turns an abstract batch into a summary via the completion client.
type Summarizer struct {
	client         ports.CompletionClient
	retrier        *retry.Retrier
	model          string
	attemptTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Collector
}

// NewSummarizer builds a Summarizer. Without a retry predicate only
// transient completion failures are retried.
func NewSummarizer(client ports.CompletionClient, opts SummarizerOptions, logger *slog.Logger, m *metrics.Collector) *Summarizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	policy := opts.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	if policy.Retryable == nil {
		policy.Retryable = RetryableCompletion
	}

	logger = logger.With("component", "summarizer")
	return &Summarizer{
		client:         client,
		retrier:        retry.New(policy, logger, opts.RetryOptions...),
		model:          opts.Model,
		attemptTimeout: opts.AttemptTimeout,
		logger:         logger,
		metrics:        m,
	}
}

// Summarize asks the model for a summary of text in fewer than plan.TargetSize
// tokens, with plan.OutputCap as the completion length limit. Exhausted or
// permanent failures come back as *domain.SummarizationFatalError.
func (s *Summarizer) Summarize(ctx context.Context, interest string, plan Plan, text string) (string, error) {
	req := ports.CompletionRequest{
		Model:            s.model,
		System:           SystemInstruction(plan.TargetSize),
		User:             text,
		MaxTokens:        plan.OutputCap,
		Temperature:      1,
		PresencePenalty:  1,
		FrequencyPenalty: 1,
	}

	var summary string
	attempts, err := s.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		attemptCtx := ctx
		if s.attemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, s.attemptTimeout)
			defer cancel()
		}

		out, err := s.client.Complete(attemptCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug("completion attempt failed", "interest", interest, "attempt", attempt, "error", err)
			return err
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return fmt.Errorf("%w: empty completion", domain.ErrSummarizationTransient)
		}
		summary = out
		return nil
	})
	s.metrics.RecordAttempts(attempts)

	if err != nil {
		return "", &domain.SummarizationFatalError{Interest: interest, Attempts: attempts, Err: err}
	}
	return summary, nil
}
