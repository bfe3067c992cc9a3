package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotPublished signals that the source has no issue for the requested day.
	ErrNotPublished = errors.New("issue not published")
	// ErrDocumentUnavailable marks a document that could not be fetched or parsed.
	ErrDocumentUnavailable = errors.New("document unavailable")
	// ErrSummarizationTransient marks completion failures worth retrying.
	ErrSummarizationTransient = errors.New("transient summarization failure")
)

// SummarizationFatalError is returned once retries are exhausted or the
// failure is not retryable. It only affects the interest it names.
type SummarizationFatalError struct {
	Interest string
	Attempts int
	Err      error
}

func (e *SummarizationFatalError) Error() string {
	return fmt.Sprintf("summarize %q failed after %d attempt(s): %v", e.Interest, e.Attempts, e.Err)
}

func (e *SummarizationFatalError) Unwrap() error { return e.Err }

// DeliveryError is returned when the email sink rejects a digest.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver digest to %s: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// DataIntegrityError rejects a store row that is missing a required field.
type DataIntegrityError struct {
	Table string
	Row   string
	Field string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("table %s row %s: missing or invalid %s", e.Table, e.Row, e.Field)
}
