package domain

import (
	"fmt"
	"time"
)

// AbstractBatch is the summarization input for one (subscriber, interest) pair.
type AbstractBatch struct {
	Interest  string
	Documents []Document
	Excluded  []Exclusion
	// Text is the abstract-only blob sent to the model.
	Text string
	// Formatted holds title, abstract and locator per document for the appendix.
	Formatted  string
	TokenCount int
}

// Empty reports whether no document contributed to the batch.
func (b AbstractBatch) Empty() bool {
	return b.Text == ""
}

// ExclusionReason explains why a document was left out of a batch.
type ExclusionReason string

const (
	ExcludedUnavailable ExclusionReason = "unavailable"
	ExcludedNoAbstract  ExclusionReason = "no_abstract"
	ExcludedBoilerplate ExclusionReason = "boilerplate"
)

// Exclusion records one skipped document.
type Exclusion struct {
	Number string
	Reason ExclusionReason
}

// Summary is the condensed text for one interest, or the placeholder.
type Summary struct {
	Text        string
	Placeholder bool
}

// NoDocumentsSummary is the placeholder used when nothing can be summarized.
func NoDocumentsSummary(interest string) Summary {
	return Summary{
		Text:        fmt.Sprintf("There are no %s documents published today.", interest),
		Placeholder: true,
	}
}

// InterestSummary pairs an interest with its summary.
type InterestSummary struct {
	Interest string
	Summary  Summary
}

// Digest is the composed per-subscriber message handed to the email sink.
type Digest struct {
	Recipient string
	Date      time.Time
	Subject   string
	Sections  []InterestSummary
	Appendix  string
	Body      string
	HTMLBody  string
	// SummaryHTML and AppendixHTML are the two halves of HTMLBody for
	// templated mail: interest blocks only, and the appendix only.
	SummaryHTML  string
	AppendixHTML string
}
