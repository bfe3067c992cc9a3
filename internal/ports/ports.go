package ports

import (
	"context"
	"time"

	"RegisterDigest/internal/domain"
)

// DocumentIndex resolves issues and documents from the publication source.
type DocumentIndex interface {
	// FetchDay fails with domain.ErrNotPublished when there is no issue for day.
	FetchDay(ctx context.Context, day time.Time) (domain.PublicationDay, error)
	// FetchDocument fails with domain.ErrDocumentUnavailable for missing or malformed documents.
	FetchDocument(ctx context.Context, number string) (domain.Document, error)
}

// SubscriberStore reads subscribers and the interest table in full.
type SubscriberStore interface {
	LoadRoster(ctx context.Context) (domain.Roster, error)
}

// CompletionRequest is one chat completion call with fixed sampling parameters.
type CompletionRequest struct {
	Model            string
	System           string
	User             string
	MaxTokens        int
	Temperature      float32
	PresencePenalty  float32
	FrequencyPenalty float32
}

// CompletionClient talks to the LLM completion service.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Tokenizer counts model tokens in a text.
type Tokenizer interface {
	Count(text string) int
}

// EmailSink delivers one composed digest.
type EmailSink interface {
	Send(ctx context.Context, digest domain.Digest) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
