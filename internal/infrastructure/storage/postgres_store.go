package storage

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/ports"
)

const (
	subscribersTable = "subscribers"
	interestsTable   = "interests"
)

// Querier is the part of *pgxpool.Pool the store needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore reads subscribers and interests from Postgres.
type PostgresStore struct {
	db Querier
	sb sq.StatementBuilderType
}

var _ ports.SubscriberStore = (*PostgresStore)(nil)

// NewPostgresStore wires a pgx pool (or any Querier).
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// LoadRoster reads both tables. Rows missing required fields are left out and
// reported as joined *domain.DataIntegrityError values next to the roster.
func (s *PostgresStore) LoadRoster(ctx context.Context) (domain.Roster, error) {
	if s.db == nil {
		return domain.Roster{}, errors.New("postgres store has no connection")
	}

	subscribers, subErrs, err := s.loadSubscribers(ctx)
	if err != nil {
		return domain.Roster{}, err
	}

	rows, rowErrs, err := s.loadInterests(ctx)
	if err != nil {
		return domain.Roster{}, err
	}

	roster := domain.Roster{
		Subscribers: subscribers,
		Interests:   domain.NewInterestMap(rows),
	}
	return roster, errors.Join(append(subErrs, rowErrs...)...)
}

func (s *PostgresStore) loadSubscribers(ctx context.Context) ([]domain.Subscriber, []error, error) {
	query, args, err := s.sb.
		Select("id", "email", "subscribed", "interests").
		From(subscribersTable).
		Where(sq.Eq{"subscribed": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build subscribers query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var (
		result  []domain.Subscriber
		invalid []error
	)
	for rows.Next() {
		var (
			id  int64
			sub domain.Subscriber
		)
		if err := rows.Scan(&id, &sub.Email, &sub.Subscribed, &sub.Interests); err != nil {
			return nil, nil, fmt.Errorf("scan subscriber: %w", err)
		}
		if err := domain.ValidateSubscriber(subscribersTable, fmt.Sprint(id), sub); err != nil {
			invalid = append(invalid, err)
			continue
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("subscribers rows: %w", err)
	}

	return result, invalid, nil
}

func (s *PostgresStore) loadInterests(ctx context.Context) ([]domain.InterestRow, []error, error) {
	query, args, err := s.sb.
		Select("id", "interest", "agency_name").
		From(interestsTable).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build interests query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query interests: %w", err)
	}
	defer rows.Close()

	var (
		result  []domain.InterestRow
		invalid []error
	)
	for rows.Next() {
		var (
			id  int64
			row domain.InterestRow
		)
		if err := rows.Scan(&id, &row.Interest, &row.Agency); err != nil {
			return nil, nil, fmt.Errorf("scan interest: %w", err)
		}
		if err := domain.ValidateInterestRow(interestsTable, fmt.Sprint(id), row); err != nil {
			invalid = append(invalid, err)
			continue
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("interests rows: %w", err)
	}

	return result, invalid, nil
}
