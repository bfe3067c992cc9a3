package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mehanizm/airtable"

	"RegisterDigest/internal/config"
	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/ports"
)

// Airtable column names used by the subscriber base.
const (
	FieldEmail      = "Subscriber Work Email"
	FieldSubscribed = "Subscribed"
	FieldInterests  = "Interests"
	FieldInterest   = "Interest"
	FieldAgency     = "Agency Name"
)

const airtablePageSize = 100

// AirtableStore reads the Subscriber and Interest tables from an Airtable base.
type AirtableStore struct {
	client           *airtable.Client
	apiKey           string
	baseID           string
	subscribersTable string
	interestsTable   string
}

var _ ports.SubscriberStore = (*AirtableStore)(nil)

// NewAirtableStore builds a store from configuration. An empty endpoint keeps
// the client's default API address.
func NewAirtableStore(cfg config.AirtableConfig) (*AirtableStore, error) {
	client := airtable.NewClient(cfg.APIKey)
	if endpoint := strings.TrimSuffix(cfg.Endpoint, "/"); endpoint != "" {
		if err := client.SetBaseURL(endpoint); err != nil {
			return nil, fmt.Errorf("airtable endpoint: %w", err)
		}
	}
	return &AirtableStore{
		client:           client,
		apiKey:           cfg.APIKey,
		baseID:           cfg.BaseID,
		subscribersTable: cfg.SubscribersTable,
		interestsTable:   cfg.InterestsTable,
	}, nil
}

// LoadRoster reads both tables in full. Invalid rows are dropped and returned
// as joined *domain.DataIntegrityError values alongside the roster.
func (s *AirtableStore) LoadRoster(ctx context.Context) (domain.Roster, error) {
	if s.apiKey == "" || s.baseID == "" {
		return domain.Roster{}, errors.New("airtable store misconfigured")
	}

	subRecords, err := s.listRecords(ctx, s.subscribersTable)
	if err != nil {
		return domain.Roster{}, err
	}
	interestRecords, err := s.listRecords(ctx, s.interestsTable)
	if err != nil {
		return domain.Roster{}, err
	}

	var (
		invalid     []error
		subscribers []domain.Subscriber
		rows        []domain.InterestRow
	)
	for _, rec := range subRecords {
		sub := domain.Subscriber{
			Email:      stringField(rec.Fields[FieldEmail]),
			Subscribed: boolField(rec.Fields[FieldSubscribed]),
			Interests:  listField(rec.Fields[FieldInterests]),
		}
		if !sub.Subscribed {
			continue
		}
		if err := domain.ValidateSubscriber(s.subscribersTable, rec.ID, sub); err != nil {
			invalid = append(invalid, err)
			continue
		}
		subscribers = append(subscribers, sub)
	}
	for _, rec := range interestRecords {
		row := domain.InterestRow{
			Interest: stringField(rec.Fields[FieldInterest]),
			Agency:   stringField(rec.Fields[FieldAgency]),
		}
		if err := domain.ValidateInterestRow(s.interestsTable, rec.ID, row); err != nil {
			invalid = append(invalid, err)
			continue
		}
		rows = append(rows, row)
	}

	roster := domain.Roster{Subscribers: subscribers, Interests: domain.NewInterestMap(rows)}
	return roster, errors.Join(invalid...)
}

// listRecords pages through table until the API stops returning an offset.
func (s *AirtableStore) listRecords(ctx context.Context, table string) ([]*airtable.Record, error) {
	var (
		records []*airtable.Record
		offset  string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		query := s.client.GetTable(s.baseID, table).GetRecords().PageSize(airtablePageSize)
		if offset != "" {
			query = query.WithOffset(offset)
		}
		page, err := query.Do()
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", table, err)
		}

		records = append(records, page.Records...)
		if page.Offset == "" {
			return records, nil
		}
		offset = page.Offset
	}
}

func stringField(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		// Lookup fields come back as single-element arrays.
		if len(val) > 0 {
			return stringField(val[0])
		}
	}
	return ""
}

func boolField(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val == 1
	case string:
		return val == "1" || strings.EqualFold(val, "true")
	}
	return false
}

func listField(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := stringField(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(val); s != "" {
			return []string{s}
		}
	}
	return nil
}
