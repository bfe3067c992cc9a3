package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/metrics"
	"RegisterDigest/internal/ports"
	"RegisterDigest/internal/retry"
)

var issueDate = time.Date(2024, time.March, 28, 0, 0, 0, 0, time.UTC)

type fakeIndex struct {
	mu       sync.Mutex
	days     map[string]domain.PublicationDay
	docs     map[string]domain.Document
	docErrs  map[string]error
	dayCalls []time.Time
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		days:    map[string]domain.PublicationDay{},
		docs:    map[string]domain.Document{},
		docErrs: map[string]error{},
	}
}

func (f *fakeIndex) addDay(day domain.PublicationDay) {
	f.days[day.Date.Format(dateLayout)] = day
}

func (f *fakeIndex) addDoc(doc domain.Document) {
	f.docs[doc.Number] = doc
}

func (f *fakeIndex) FetchDay(_ context.Context, day time.Time) (domain.PublicationDay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dayCalls = append(f.dayCalls, day)
	d, ok := f.days[day.Format(dateLayout)]
	if !ok {
		return domain.PublicationDay{}, domain.ErrNotPublished
	}
	return d, nil
}

func (f *fakeIndex) FetchDocument(ctx context.Context, number string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.docErrs[number]; ok {
		return domain.Document{}, err
	}
	doc, ok := f.docs[number]
	if !ok {
		return domain.Document{}, domain.ErrDocumentUnavailable
	}
	return doc, nil
}

type fakeStore struct {
	mu     sync.Mutex
	roster domain.Roster
	err    error
	calls  int
}

func (f *fakeStore) LoadRoster(context.Context) (domain.Roster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.roster, f.err
}

type completionResult struct {
	text string
	err  error
}

// fakeCompletion replays results in order and repeats the last one.
type fakeCompletion struct {
	mu       sync.Mutex
	results  []completionResult
	requests []ports.CompletionRequest
}

func (f *fakeCompletion) Complete(_ context.Context, req ports.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.results) == 0 {
		return "summary", nil
	}
	idx := len(f.requests) - 1
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	r := f.results[idx]
	return r.text, r.err
}

func (f *fakeCompletion) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type countingTokenizer func(string) int

func (c countingTokenizer) Count(text string) int { return c(text) }

// charTokenizer counts one token per byte.
var charTokenizer = countingTokenizer(func(s string) int { return len(s) })

type fakeSink struct {
	mu     sync.Mutex
	sent   []domain.Digest
	failTo map[string]error
}

func (f *fakeSink) Send(_ context.Context, digest domain.Digest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTo[digest.Recipient]; ok {
		return &domain.DeliveryError{Recipient: digest.Recipient, Err: err}
	}
	f.sent = append(f.sent, digest)
	return nil
}

func (f *fakeSink) byRecipient(email string) (domain.Digest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.sent {
		if d.Recipient == email {
			return d, true
		}
	}
	return domain.Digest{}, false
}

type fakeDriver struct {
	job     func(time.Time)
	stopped bool
}

func (f *fakeDriver) Start(_ context.Context, job func(time.Time)) error {
	f.job = job
	return nil
}

func (f *fakeDriver) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func noWait() retry.Option {
	return retry.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} })
}

type harness struct {
	index     *fakeIndex
	store     *fakeStore
	llm       *fakeCompletion
	sink      *fakeSink
	tokenizer ports.Tokenizer
	metrics   *metrics.Collector
	budget    BudgetPolicy
	logger    *slog.Logger
	concur    int
}

func newHarness() *harness {
	return &harness{
		index:     newFakeIndex(),
		store:     &fakeStore{},
		llm:       &fakeCompletion{},
		sink:      &fakeSink{},
		tokenizer: charTokenizer,
		metrics:   metrics.New(),
		budget:    DefaultBudgetPolicy(),
		concur:    1,
	}
}

func (h *harness) summarizer() *Summarizer {
	return NewSummarizer(h.llm, SummarizerOptions{
		Model:        "gpt-4",
		Retry:        retry.DefaultPolicy(),
		RetryOptions: []retry.Option{noWait()},
	}, nil, h.metrics)
}

func (h *harness) pipeline() *Pipeline {
	return NewPipeline(PipelineDeps{
		Index:         h.index,
		Store:         h.store,
		Assembler:     NewBatchAssembler(h.index, nil, nil, h.metrics),
		Planner:       NewTokenBudgetPlanner(h.tokenizer, h.budget),
		Summarizer:    h.summarizer(),
		Composer:      NewDigestComposer("Apprise Daily Summary", "Sent by Apprise."),
		Sink:          h.sink,
		Logger:        h.logger,
		Metrics:       h.metrics,
		CutoffHourUTC: 11,
		Concurrency:   h.concur,
	})
}
