package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/metrics"
	"RegisterDigest/internal/ports"
)

// BatchAssembler gathers the abstracts of one interest into an AbstractBatch.
type BatchAssembler struct {
	index   ports.DocumentIndex
	markers []string
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewBatchAssembler wires the document index and boilerplate markers.
func NewBatchAssembler(index ports.DocumentIndex, markers []string, logger *slog.Logger, m *metrics.Collector) *BatchAssembler {
	if len(markers) == 0 {
		markers = []string{domain.DefaultBoilerplateMarker}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BatchAssembler{index: index, markers: markers, logger: logger, metrics: m}
}

// Assemble fetches every document of the given agencies in issue order and
// keeps those with a substantive abstract. Fetch failures only exclude the
// document; the returned error is non-nil only when ctx is done.
func (a *BatchAssembler) Assemble(ctx context.Context, day domain.PublicationDay, interest string, agencies []string) (domain.AbstractBatch, error) {
	batch := domain.AbstractBatch{Interest: interest}

	var text, formatted strings.Builder
	for _, number := range day.DocumentNumbers(agencies) {
		if err := ctx.Err(); err != nil {
			return domain.AbstractBatch{}, err
		}

		doc, err := a.index.FetchDocument(ctx, number)
		if err != nil {
			if ctx.Err() != nil {
				return domain.AbstractBatch{}, ctx.Err()
			}
			a.exclude(&batch, number, domain.ExcludedUnavailable, err)
			continue
		}

		switch {
		case !doc.HasAbstract():
			a.exclude(&batch, number, domain.ExcludedNoAbstract, nil)
			continue
		case doc.IsBoilerplate(a.markers):
			a.exclude(&batch, number, domain.ExcludedBoilerplate, nil)
			continue
		}

		batch.Documents = append(batch.Documents, doc)
		text.WriteString(doc.Abstract)
		text.WriteString("\n\n")
		formatted.WriteString(FormatAppendixEntry(doc))
	}

	batch.Text = text.String()
	batch.Formatted = formatted.String()
	return batch, nil
}

func (a *BatchAssembler) exclude(batch *domain.AbstractBatch, number string, reason domain.ExclusionReason, err error) {
	batch.Excluded = append(batch.Excluded, domain.Exclusion{Number: number, Reason: reason})
	a.metrics.RecordExclusion(string(reason))

	if err != nil && errors.Is(err, domain.ErrDocumentUnavailable) {
		a.logger.Warn("document unavailable, excluded from batch",
			"interest", batch.Interest, "document", number, "error", err)
		return
	}
	if err != nil {
		a.logger.Warn("document fetch failed, excluded from batch",
			"interest", batch.Interest, "document", number, "error", err)
		return
	}
	a.logger.Debug("document excluded", "interest", batch.Interest, "document", number, "reason", reason)
}

// FormatAppendixEntry renders one document for the plain-text appendix.
func FormatAppendixEntry(doc domain.Document) string {
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = doc.Number
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n%s\n", title, doc.Abstract)
	if doc.URL != "" {
		fmt.Fprintf(&b, "Full document: %s\n", doc.URL)
	}
	b.WriteString("\n")
	return b.String()
}
