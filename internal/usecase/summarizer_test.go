package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/metrics"
	"RegisterDigest/internal/ports"
	"RegisterDigest/internal/retry"
)

var (
	errRateLimited = fmt.Errorf("%w: status 429", domain.ErrSummarizationTransient)
	smallPlan      = Plan{TokenCount: 33, TargetSize: 10, OutputCap: 10, Admitted: true}
)

func newTestSummarizer(llm *fakeCompletion, m *metrics.Collector) *Summarizer {
	return NewSummarizer(llm, SummarizerOptions{
		Model:        "gpt-4",
		Retry:        retry.DefaultPolicy(),
		RetryOptions: []retry.Option{noWait()},
	}, nil, m)
}

func TestSummarizeRequestShape(t *testing.T) {
	t.Parallel()

	llm := &fakeCompletion{results: []completionResult{{text: "  A short summary.  "}}}
	s := newTestSummarizer(llm, nil)

	out, err := s.Summarize(context.Background(), "Environment", Plan{TokenCount: 1000, TargetSize: 300, OutputCap: 300, Admitted: true}, "Rule about emissions.\n\n")
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", out)

	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	assert.Equal(t, "gpt-4", req.Model)
	assert.Equal(t, SystemInstruction(300), req.System)
	assert.Contains(t, req.System, "using less than 300 tokens")
	assert.Equal(t, "Rule about emissions.\n\n", req.User)
	assert.Equal(t, 300, req.MaxTokens)
	assert.InDelta(t, 1, req.Temperature, 0)
	assert.InDelta(t, 1, req.PresencePenalty, 0)
	assert.InDelta(t, 1, req.FrequencyPenalty, 0)
}

func TestSummarizeSendsPlannedOutputCap(t *testing.T) {
	t.Parallel()

	llm := &fakeCompletion{}
	s := newTestSummarizer(llm, nil)
	plan := Plan{TokenCount: 2000, TargetSize: 5400, OutputCap: DefaultBudgetPolicy().OutputCap(5400), Admitted: true}

	_, err := s.Summarize(context.Background(), "Environment", plan, "text")
	require.NoError(t, err)
	assert.Equal(t, 8000, llm.requests[0].MaxTokens)
	assert.Contains(t, llm.requests[0].System, "less than 5400 tokens")
}

func TestSummarizeSucceedsOnSixthAttempt(t *testing.T) {
	t.Parallel()

	results := make([]completionResult, 0, 6)
	for range 5 {
		results = append(results, completionResult{err: errRateLimited})
	}
	results = append(results, completionResult{text: "Finally."})
	llm := &fakeCompletion{results: results}
	m := metrics.New()
	s := newTestSummarizer(llm, m)

	out, err := s.Summarize(context.Background(), "Environment", smallPlan, "text")
	require.NoError(t, err)
	assert.Equal(t, "Finally.", out)
	assert.Equal(t, 6, llm.calls())
	assert.InDelta(t, 6, testutil.ToFloat64(m.CompletionAttempts), 0)
}

func TestSummarizeGivesUpAfterSixTransientFailures(t *testing.T) {
	t.Parallel()

	llm := &fakeCompletion{results: []completionResult{{err: errRateLimited}}}
	s := newTestSummarizer(llm, nil)

	_, err := s.Summarize(context.Background(), "Environment", smallPlan, "text")
	require.Error(t, err)
	assert.Equal(t, 6, llm.calls())

	var fatal *domain.SummarizationFatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, "Environment", fatal.Interest)
	assert.Equal(t, 6, fatal.Attempts)
	assert.True(t, errors.Is(err, domain.ErrSummarizationTransient))
}

func TestSummarizeDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	llm := &fakeCompletion{results: []completionResult{{err: errors.New("invalid api key")}}}
	s := newTestSummarizer(llm, nil)

	_, err := s.Summarize(context.Background(), "Environment", smallPlan, "text")
	var fatal *domain.SummarizationFatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, 1, fatal.Attempts)
	assert.Equal(t, 1, llm.calls())
}

func TestSummarizeRetriesEmptyCompletion(t *testing.T) {
	t.Parallel()

	llm := &fakeCompletion{results: []completionResult{{text: "   "}, {text: "Second try."}}}
	s := newTestSummarizer(llm, nil)

	out, err := s.Summarize(context.Background(), "Environment", smallPlan, "text")
	require.NoError(t, err)
	assert.Equal(t, "Second try.", out)
	assert.Equal(t, 2, llm.calls())
}

type slowCompletion struct {
	calls int
}

func (s *slowCompletion) Complete(ctx context.Context, _ ports.CompletionRequest) (string, error) {
	s.calls++
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSummarizeAttemptTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	slow := &slowCompletion{}
	policy := retry.DefaultPolicy()
	policy.MaxAttempts = 2
	s := NewSummarizer(slow, SummarizerOptions{
		Model:          "gpt-4",
		AttemptTimeout: 10 * time.Millisecond,
		Retry:          policy,
		RetryOptions:   []retry.Option{noWait()},
	}, nil, nil)

	_, err := s.Summarize(context.Background(), "Environment", smallPlan, "text")
	require.Error(t, err)
	assert.Equal(t, 2, slow.calls)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
