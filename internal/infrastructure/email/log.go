package email

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/ports"
)

// LogSink prints digests instead of sending them; used for dry runs.
type LogSink struct {
	mu     sync.Mutex
	out    io.Writer
	logger *slog.Logger
}

var _ ports.EmailSink = (*LogSink)(nil)

// NewLogSink writes to out, or stdout when out is nil.
func NewLogSink(out io.Writer, logger *slog.Logger) *LogSink {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogSink{out: out, logger: logger}
}

// Send writes the plain-text digest with a minimal header block.
func (s *LogSink) Send(_ context.Context, digest domain.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.out, "To: %s\nSubject: %s\n\n%s\n", digest.Recipient, digest.Subject, digest.Body); err != nil {
		return &domain.DeliveryError{Recipient: digest.Recipient, Err: err}
	}
	s.logger.Info("digest written", "subscriber", digest.Recipient, "sections", len(digest.Sections))
	return nil
}
