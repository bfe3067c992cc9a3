package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"RegisterDigest/internal/domain"
)

const (
	dateLayout = "2006-01-02"

	appendixSeparator = "----------------------------------------\n" +
		"Full text of today's documents:\n\n"
	emptyAppendix = "No documents matched your interests today.\n\n"
)

// DigestComposer renders per-subscriber digests.
type DigestComposer struct {
	subjectPrefix string
	footer        string
	sanitizer     *bluemonday.Policy
}

// NewDigestComposer configures the subject prefix and closing footer.
func NewDigestComposer(subjectPrefix, footer string) *DigestComposer {
	return &DigestComposer{
		subjectPrefix: strings.TrimSpace(subjectPrefix),
		footer:        strings.TrimSpace(footer),
		sanitizer:     bluemonday.StrictPolicy(),
	}
}

// Subject is "<prefix> YYYY-MM-DD".
func (c *DigestComposer) Subject(date time.Time) string {
	if c.subjectPrefix == "" {
		return date.Format(dateLayout)
	}
	return c.subjectPrefix + " " + date.Format(dateLayout)
}

// Compose lays out one block per interest in subscription order, then the
// appendix, then the footer.
func (c *DigestComposer) Compose(sub domain.Subscriber, date time.Time, sections []domain.InterestSummary, appendix string) domain.Digest {
	var blocks strings.Builder
	for _, section := range sections {
		blocks.WriteString(FormatInterestBlock(section))
	}

	var body strings.Builder
	body.WriteString(blocks.String())

	body.WriteString(appendixSeparator)
	if appendix == "" {
		body.WriteString(emptyAppendix)
	} else {
		body.WriteString(appendix)
	}
	if c.footer != "" {
		body.WriteString(c.footer)
		body.WriteString("\n")
	}

	text := body.String()
	return domain.Digest{
		Recipient: sub.Email,
		Date:      date,
		Subject:   c.Subject(date),
		Sections:  sections,
		Appendix:  appendix,
		Body:      text,
		HTMLBody:  c.html(text),

		SummaryHTML:  c.html(blocks.String()),
		AppendixHTML: c.html(appendix),
	}
}

// html escapes any markup carried over from the sources and keeps line breaks.
func (c *DigestComposer) html(text string) string {
	escaped := c.sanitizer.Sanitize(text)
	return strings.ReplaceAll(escaped, "\n", "<br>")
}

// FormatInterestBlock renders "{interest}:\n{summary}\n\n".
func FormatInterestBlock(section domain.InterestSummary) string {
	return fmt.Sprintf("%s:\n%s\n\n", section.Interest, section.Summary.Text)
}
