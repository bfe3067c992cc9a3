package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/ports"
)

// ExportReport counts the days visited by a backfill export.
type ExportReport struct {
	Days      int
	Published int
	Documents int
}

// Exporter writes the formatted documents of a date range for every agency
// referenced by the interest table.
type Exporter struct {
	index     ports.DocumentIndex
	store     ports.SubscriberStore
	assembler *BatchAssembler
	logger    *slog.Logger
}

// NewExporter wires the backfill exporter.
func NewExporter(index ports.DocumentIndex, store ports.SubscriberStore, assembler *BatchAssembler, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{index: index, store: store, assembler: assembler, logger: logger.With("component", "exporter")}
}

// Export walks from..to inclusive and writes a dated section per published
// day. Days without an issue are skipped.
func (e *Exporter) Export(ctx context.Context, from, to time.Time, w io.Writer) (ExportReport, error) {
	var report ExportReport
	if to.Before(from) {
		return report, fmt.Errorf("export range: %s is before %s", to.Format(dateLayout), from.Format(dateLayout))
	}

	roster, err := e.store.LoadRoster(ctx)
	if err != nil {
		var integrity *domain.DataIntegrityError
		if !errors.As(err, &integrity) {
			return report, fmt.Errorf("load interests: %w", err)
		}
		for _, rowErr := range flatten(err) {
			e.logger.Warn("skipping invalid store row", "error", rowErr)
		}
	}
	agencies := roster.Interests.AllAgencies()

	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		report.Days++
		day, err := e.index.FetchDay(ctx, date)
		if errors.Is(err, domain.ErrNotPublished) {
			e.logger.Debug("no issue", "date", date.Format(dateLayout))
			continue
		}
		if err != nil {
			return report, fmt.Errorf("fetch issue %s: %w", date.Format(dateLayout), err)
		}
		report.Published++

		batch, err := e.assembler.Assemble(ctx, day, "all", agencies)
		if err != nil {
			return report, err
		}
		report.Documents += len(batch.Documents)

		if _, err := fmt.Fprintf(w, "# %s\n\n%s", date.Format(dateLayout), batch.Formatted); err != nil {
			return report, fmt.Errorf("write export: %w", err)
		}
		e.logger.Info("exported day", "date", date.Format(dateLayout), "documents", len(batch.Documents))
	}
	return report, nil
}
