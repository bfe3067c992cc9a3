package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegisterDigest/internal/domain"
)

const (
	epa     = "Environmental Protection Agency"
	defense = "Defense Department"
)

// seedIssue publishes one EPA document on issueDate and maps Environment to
// EPA and Defense to the Defense Department.
func seedIssue(h *harness, subs ...domain.Subscriber) {
	h.index.addDay(domain.PublicationDay{
		Date: issueDate,
		Agencies: []domain.AgencyBundle{
			{Name: epa, Groups: []domain.DocumentGroup{{Category: "Rule", Numbers: []string{"2024-00001"}}}},
		},
	})
	h.index.addDoc(domain.Document{
		Number:   "2024-00001",
		Title:    "Air rule",
		Abstract: "Rule about emissions.",
		URL:      "https://example.gov/2024-00001.pdf",
	})
	h.store.roster = domain.Roster{
		Subscribers: subs,
		Interests: domain.NewInterestMap([]domain.InterestRow{
			{Interest: "Environment", Agency: epa},
			{Interest: "Defense", Agency: defense},
		}),
	}
}

func subscriber(email string, interests ...string) domain.Subscriber {
	return domain.Subscriber{Email: email, Subscribed: true, Interests: interests}
}

func TestRunDeliversSummaryAndAppendix(t *testing.T) {
	t.Parallel()

	h := newHarness()
	seedIssue(h, subscriber("reader@example.com", "Environment"))
	h.llm.results = []completionResult{{text: "EPA proposed an emissions rule."}}

	report, err := h.pipeline().Run(context.Background(), issueDate)
	require.NoError(t, err)

	assert.True(t, report.Published)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Subscribers)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Summaries)

	require.Len(t, h.sink.sent, 1)
	digest := h.sink.sent[0]
	assert.Equal(t, "Apprise Daily Summary 2024-03-28", digest.Subject)
	assert.True(t, strings.HasPrefix(digest.Body, "Environment:\nEPA proposed an emissions rule.\n\n"))
	assert.Contains(t, digest.Body, "Air rule:\nRule about emissions.\nFull document: https://example.gov/2024-00001.pdf\n\n")

	require.Len(t, h.llm.requests, 1)
	assert.Equal(t, "Rule about emissions.\n\n", h.llm.requests[0].User)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues(OutcomeCompleted)), 0)
}

func TestRunNotPublishedSendsNothing(t *testing.T) {
	t.Parallel()

	h := newHarness()
	seedIssue(h, subscriber("reader@example.com", "Environment"))

	report, err := h.pipeline().Run(context.Background(), issueDate.AddDate(0, 0, 1))
	require.NoError(t, err)

	assert.False(t, report.Published)
	assert.Empty(t, h.sink.sent)
	assert.Zero(t, h.store.calls)
	assert.Zero(t, h.llm.calls())
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues(OutcomeNotPublished)), 0)
}

func TestRunPlaceholderForInterestWithoutDocuments(t *testing.T) {
	t.Parallel()

	h := newHarness()
	seedIssue(h, subscriber("reader@example.com", "Environment", "Defense"))
	h.llm.results = []completionResult{{text: "EPA summary."}}

	report, err := h.pipeline().Run(context.Background(), issueDate)
	require.NoError(t, err)

	require.Len(t, h.sink.sent, 1)
	body := h.sink.sent[0].Body
	assert.True(t, strings.HasPrefix(body,
		"Environment:\nEPA summary.\n\nDefense:\nThere are no Defense documents published today.\n\n"))
	assert.Equal(t, 1, h.llm.calls())
	assert.Equal(t, 1, report.Placeholders)
	assert.Zero(t, report.SummaryFailures)
}

func TestRunUnknownInterestGetsPlaceholder(t *testing.T) {
	t.Parallel()

	h := newHarness()
	seedIssue(h, subscriber("reader@example.com", "Space"))

	_, err := h.pipeline().Run(context.Background(), issueDate)
	require.NoError(t, err)

	require.Len(t, h.sink.sent, 1)
	assert.True(t, strings.HasPrefix(h.sink.sent[0].Body, "Space:\nThere are no Space documents published today.\n\n"))
	assert.Zero(t, h.llm.calls())
}

func TestRunSkipsUnsubscribed(t *testing.T) {
	t.Parallel()

	h := newHarness()
	inactive := subscriber("gone@example.com", "Environment")
	inactive.Subscribed = false
	seedIssue(h, subscriber("reader@example.com", "Environment"), inactive)

	report, err := h.pipeline().Run(context.Background(), issueDate)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Subscribers)
	_, sent := h.sink.byRecipient("gone@example.com")
	assert.False(t, sent)
}

func TestRunDeliveryFailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	h := newHarness()
	seedIssue(h,
		subscriber("broken@example.com", "Environment"),
		subscriber("reader@example.com", "Environment"))
	h.sink.failTo = map[string]error{"broken@example.com": errors.New("mailbox unavailable")}

	report, err := h.pipeline().Run(context.Background(), issueDate)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.DeliveryFailures)
	_, sent := h.sink.byRecipient("reader@example.com")
	assert.True(t, sent)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.DeliveriesTotal.WithLabelValues("failed")), 0)
}

func TestRunExhaustedRetriesFallBackToPlaceholder(t *testing.T) {
	t.Parallel()

	h := newHarness()
	seedIssue(h, subscriber("reader@example.com", "Environment"))
	h.llm.results = []completionResult{{err: errRateLimited}}

	report, err := h.pipeline().Run(context.Background(), issueDate)
	require.NoError(t, err)

	assert.Equal(t, 6, h.llm.calls())
	assert.Equal(t, 1, report.SummaryFailures)
	require.Len(t, h.sink.sent, 1)
	body := h.sink.sent[0].Body
	assert.True(t, strings.HasPrefix(body, "Environment:\nThere are no Environment documents published today.\n\n"))
	// the appendix still carries the document
	assert.Contains(t, body, "Air rule:\nRule about emissions.")
}

func TestRunOverBudgetSkipsCompletion(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.tokenizer = countingTokenizer(func(string) int { return 7000 })
	seedIssue(h, subscriber("reader@example.com", "Environment"))

	report, err := h.pipeline().Run(context.Background(), issueDate)
	require.NoError(t, err)

	assert.Zero(t, h.llm.calls())
	assert.Equal(t, 1, report.Placeholders)
	require.Len(t, h.sink.sent, 1)
	assert.True(t, strings.HasPrefix(h.sink.sent[0].Body, "Environment:\nThere are no Environment documents published today."))
}

func TestRunDeduplicatesAppendix(t *testing.T) {
	t.Parallel()

	h := newHarness()
	seedIssue(h, subscriber("reader@example.com", "Environment", "Air"))
	h.store.roster.Interests = domain.NewInterestMap([]domain.InterestRow{
		{Interest: "Environment", Agency: epa},
		{Interest: "Air", Agency: epa},
	})

	_, err := h.pipeline().Run(context.Background(), issueDate)
	require.NoError(t, err)

	require.Len(t, h.sink.sent, 1)
	assert.Equal(t, 1, strings.Count(h.sink.sent[0].Body, "Air rule:\n"))
	assert.Equal(t, 2, h.llm.calls())
}

func TestRunSkipsInvalidStoreRows(t *testing.T) {
	t.Parallel()

	h := newHarness()
	seedIssue(h, subscriber("reader@example.com", "Environment"))
	h.store.err = errors.Join(&domain.DataIntegrityError{Table: "Subscriber", Row: "rec2", Field: "email"})

	report, err := h.pipeline().Run(context.Background(), issueDate)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
}

func TestRunStoreFailureIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness()
	seedIssue(h, subscriber("reader@example.com", "Environment"))
	h.store.err = errors.New("connection refused")

	_, err := h.pipeline().Run(context.Background(), issueDate)
	require.Error(t, err)
	assert.Empty(t, h.sink.sent)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.RunsTotal.WithLabelValues(OutcomeFailed)), 0)
}

func TestRunConcurrentSubscribers(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.concur = 4
	subs := make([]domain.Subscriber, 0, 10)
	for i := range 10 {
		subs = append(subs, subscriber(strings.Repeat("x", i+1)+"@example.com", "Environment"))
	}
	seedIssue(h, subs...)

	report, err := h.pipeline().Run(context.Background(), issueDate)
	require.NoError(t, err)

	assert.Equal(t, 10, report.Delivered)
	assert.Len(t, h.sink.sent, 10)
	assert.Equal(t, 10, h.llm.calls())
}

func TestRunCancelledSendsNothing(t *testing.T) {
	t.Parallel()

	h := newHarness()
	seedIssue(h, subscriber("reader@example.com", "Environment"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.pipeline().Run(ctx, issueDate)
	require.Error(t, err)
	assert.Empty(t, h.sink.sent)
}

func TestProcessDayAppliesCutoff(t *testing.T) {
	t.Parallel()

	h := newHarness()
	seedIssue(h, subscriber("reader@example.com", "Environment"))
	p := h.pipeline()

	_, err := p.ProcessDay(context.Background(), time.Date(2024, time.March, 29, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	_, err = p.ProcessDay(context.Background(), time.Date(2024, time.March, 28, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.Len(t, h.index.dayCalls, 2)
	assert.Equal(t, issueDate, h.index.dayCalls[0])
	assert.Equal(t, issueDate, h.index.dayCalls[1])
	assert.Len(t, h.sink.sent, 2)
}

func TestRunSendsPlannerOutputCap(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.budget = BudgetPolicy{SummaryRatio: 0.3, MaxTokens: 10000, ExpansionThreshold: 5, ExpansionFactor: 2}
	var logs bytes.Buffer
	h.logger = slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	seedIssue(h, subscriber("reader@example.com", "Environment"))

	_, err := h.pipeline().Run(context.Background(), issueDate)
	require.NoError(t, err)

	// "Rule about emissions.\n\n" is 23 tokens: target 7, above the threshold of 5
	require.Len(t, h.llm.requests, 1)
	assert.Equal(t, 14, h.llm.requests[0].MaxTokens)
	assert.Contains(t, h.llm.requests[0].System, "less than 7 tokens")
	assert.Contains(t, logs.String(), `"interest":"Environment","tokens":23,"target":7}`)
}
