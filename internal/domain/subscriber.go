package domain

import (
	"net/mail"
	"strings"
)

// Subscriber is a read-only record from the subscriber store.
type Subscriber struct {
	Email      string
	Subscribed bool
	Interests  []string
}

// InterestMap maps an interest name to its ordered, de-duplicated agency names.
type InterestMap struct {
	agencies map[string][]string
	order    []string
}

// InterestRow is one (interest, agency) pair as stored in the Interests table.
type InterestRow struct {
	Interest string
	Agency   string
}

// NewInterestMap builds the map from table rows, keeping first-seen order.
func NewInterestMap(rows []InterestRow) InterestMap {
	m := InterestMap{agencies: map[string][]string{}}
	for _, row := range rows {
		list, known := m.agencies[row.Interest]
		if !known {
			m.order = append(m.order, row.Interest)
		}
		if contains(list, row.Agency) {
			continue
		}
		m.agencies[row.Interest] = append(list, row.Agency)
	}
	return m
}

// Agencies returns the agencies for interest; unknown interests yield nil.
func (m InterestMap) Agencies(interest string) []string {
	list := m.agencies[interest]
	if len(list) == 0 {
		return nil
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// Interests lists the known interest names in load order.
func (m InterestMap) Interests() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// AllAgencies returns every agency referenced by any interest, first-seen order.
func (m InterestMap) AllAgencies() []string {
	var out []string
	for _, interest := range m.order {
		for _, agency := range m.agencies[interest] {
			if !contains(out, agency) {
				out = append(out, agency)
			}
		}
	}
	return out
}

// Roster is everything the pipeline reads from the subscriber store in one run.
type Roster struct {
	Subscribers []Subscriber
	Interests   InterestMap
}

// Active returns subscribers with the subscription flag set, in store order.
func (r Roster) Active() []Subscriber {
	active := make([]Subscriber, 0, len(r.Subscribers))
	for _, sub := range r.Subscribers {
		if sub.Subscribed {
			active = append(active, sub)
		}
	}
	return active
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// ValidateSubscriber rejects rows without a usable email address.
func ValidateSubscriber(table, row string, sub Subscriber) error {
	if strings.TrimSpace(sub.Email) == "" {
		return &DataIntegrityError{Table: table, Row: row, Field: "email"}
	}
	if _, err := mail.ParseAddress(sub.Email); err != nil {
		return &DataIntegrityError{Table: table, Row: row, Field: "email"}
	}
	return nil
}

// ValidateInterestRow rejects rows missing the interest or agency name.
func ValidateInterestRow(table, row string, r InterestRow) error {
	if strings.TrimSpace(r.Interest) == "" {
		return &DataIntegrityError{Table: table, Row: row, Field: "interest"}
	}
	if strings.TrimSpace(r.Agency) == "" {
		return &DataIntegrityError{Table: table, Row: row, Field: "agency"}
	}
	return nil
}
