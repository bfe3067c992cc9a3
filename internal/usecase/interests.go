package usecase

import "RegisterDigest/internal/domain"

// InterestResolver maps subscriber interests to agency names.
type InterestResolver struct {
	interests domain.InterestMap
}

// NewInterestResolver wraps the run's read-only interest map.
func NewInterestResolver(interests domain.InterestMap) *InterestResolver {
	return &InterestResolver{interests: interests}
}

// AgenciesFor returns the agencies for interest. Unknown interests resolve to
// no agencies, which later yields the placeholder summary.
func (r *InterestResolver) AgenciesFor(interest string) []string {
	return r.interests.Agencies(interest)
}
