package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"RegisterDigest/internal/domain"
	"RegisterDigest/internal/ports"
)

// FileStore reads the roster from a YAML file, mainly for local runs.
type FileStore struct {
	path string
}

var _ ports.SubscriberStore = (*FileStore)(nil)

// NewFileStore points the store at a YAML roster file.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type rosterFile struct {
	Subscribers []struct {
		Email      string   `yaml:"email"`
		Subscribed bool     `yaml:"subscribed"`
		Interests  []string `yaml:"interests"`
	} `yaml:"subscribers"`
	Interests []struct {
		Interest string `yaml:"interest"`
		Agency   string `yaml:"agency"`
	} `yaml:"interests"`
}

// LoadRoster parses the file; invalid rows are reported like the other stores.
func (s *FileStore) LoadRoster(_ context.Context) (domain.Roster, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return domain.Roster{}, fmt.Errorf("read roster %s: %w", s.path, err)
	}

	var file rosterFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return domain.Roster{}, fmt.Errorf("parse roster %s: %w", s.path, err)
	}

	var (
		invalid     []error
		subscribers []domain.Subscriber
		rows        []domain.InterestRow
	)
	for i, entry := range file.Subscribers {
		sub := domain.Subscriber{Email: entry.Email, Subscribed: entry.Subscribed, Interests: entry.Interests}
		if err := domain.ValidateSubscriber("subscribers", fmt.Sprint(i+1), sub); err != nil {
			invalid = append(invalid, err)
			continue
		}
		subscribers = append(subscribers, sub)
	}
	for i, entry := range file.Interests {
		row := domain.InterestRow{Interest: entry.Interest, Agency: entry.Agency}
		if err := domain.ValidateInterestRow("interests", fmt.Sprint(i+1), row); err != nil {
			invalid = append(invalid, err)
			continue
		}
		rows = append(rows, row)
	}

	return domain.Roster{Subscribers: subscribers, Interests: domain.NewInterestMap(rows)}, errors.Join(invalid...)
}
