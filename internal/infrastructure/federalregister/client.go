package federalregister

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/ports"
)

const userAgent = "RegisterDigest/1.0"

var documentFields = []string{"abstract", "pdf_url", "title"}

// Options configures a Client.
type Options struct {
	BaseURL           string
	HTTPClient        *http.Client
	RequestsPerSecond float64
	// CacheSize bounds how many documents are kept for reuse across subscribers.
	// Zero disables caching.
	CacheSize int
	Logger    *slog.Logger
}

// Client implements ports.DocumentIndex against the Federal Register API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	cache   *lru.Cache[string, domain.Document]
	logger  *slog.Logger
}

var _ ports.DocumentIndex = (*Client)(nil)

// NewClient wires HTTP, rate limiting and the document cache.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("federal register base url is empty")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		http:    client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}

	if opts.CacheSize > 0 {
		cache, err := lru.New[string, domain.Document](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("document cache: %w", err)
		}
		c.cache = cache
	}

	return c, nil
}

type issuePayload struct {
	Agencies []struct {
		Name               string `json:"name"`
		DocumentCategories []struct {
			Type      string `json:"type"`
			Documents []struct {
				DocumentNumbers []string `json:"document_numbers"`
			} `json:"documents"`
		} `json:"document_categories"`
	} `json:"agencies"`
}

type documentPayload struct {
	Title    *string `json:"title"`
	Abstract *string `json:"abstract"`
	PDFURL   *string `json:"pdf_url"`
}

// FetchDay loads the issue for day. A 404 means no issue was published.
func (c *Client) FetchDay(ctx context.Context, day time.Time) (domain.PublicationDay, error) {
	date := day.Format(time.DateOnly)
	endpoint := fmt.Sprintf("%s/issues/%s.json", c.baseURL, date)

	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return domain.PublicationDay{}, fmt.Errorf("fetch issue %s: %w", date, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.PublicationDay{}, fmt.Errorf("issue %s: %w", date, domain.ErrNotPublished)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.PublicationDay{}, fmt.Errorf("issue %s: unexpected status %s", date, resp.Status)
	}

	var payload issuePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.PublicationDay{}, fmt.Errorf("decode issue %s: %w", date, err)
	}

	result := domain.PublicationDay{
		Date:     time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		Agencies: make([]domain.AgencyBundle, 0, len(payload.Agencies)),
	}
	for _, agency := range payload.Agencies {
		bundle := domain.AgencyBundle{Name: agency.Name}
		for _, category := range agency.DocumentCategories {
			for _, doc := range category.Documents {
				bundle.Groups = append(bundle.Groups, domain.DocumentGroup{
					Category: category.Type,
					Numbers:  doc.DocumentNumbers,
				})
			}
		}
		result.Agencies = append(result.Agencies, bundle)
	}

	c.logger.Debug("issue fetched", "day", date, "agencies", len(result.Agencies))
	return result, nil
}

// FetchDocument loads title, abstract and PDF link for one document number.
func (c *Client) FetchDocument(ctx context.Context, number string) (domain.Document, error) {
	if c.cache != nil {
		if doc, ok := c.cache.Get(number); ok {
			return doc, nil
		}
	}

	query := url.Values{"fields[]": documentFields}
	endpoint := fmt.Sprintf("%s/documents/%s.json?%s", c.baseURL, url.PathEscape(number), query.Encode())

	resp, err := c.get(ctx, endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Document{}, ctx.Err()
		}
		return domain.Document{}, fmt.Errorf("%w: document %s: %v", domain.ErrDocumentUnavailable, number, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.Document{}, fmt.Errorf("%w: document %s returned %s", domain.ErrDocumentUnavailable, number, resp.Status)
	}

	var payload documentPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Document{}, fmt.Errorf("%w: decode document %s: %v", domain.ErrDocumentUnavailable, number, err)
	}

	doc := domain.Document{
		Number:   number,
		Title:    plainText(deref(payload.Title)),
		Abstract: plainText(deref(payload.Abstract)),
		URL:      strings.TrimSpace(deref(payload.PDFURL)),
	}

	if c.cache != nil {
		c.cache.Add(number, doc)
	}
	return doc, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", endpoint, err)
	}
	return resp, nil
}

// plainText strips any markup the API embeds in titles and abstracts and
// collapses runs of whitespace.
func plainText(s string) string {
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
