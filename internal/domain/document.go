package domain

import (
	"strings"
	"time"
)

// DefaultBoilerplateMarker flags abstracts that are only a paperwork-burden notice.
const DefaultBoilerplateMarker = "Paperwork Reduction Act"

// PublicationDay is one issue of the register, grouped by issuing agency.
type PublicationDay struct {
	Date     time.Time
	Agencies []AgencyBundle
}

// AgencyBundle is the subtree of an issue belonging to one agency.
type AgencyBundle struct {
	Name   string
	Groups []DocumentGroup
}

// DocumentGroup holds the document numbers of one category/subject entry.
type DocumentGroup struct {
	Category string
	Numbers  []string
}

// DocumentNumbers flattens the issue for the given agencies, preserving source order.
func (d PublicationDay) DocumentNumbers(agencies []string) []string {
	if len(agencies) == 0 {
		return nil
	}

	wanted := make(map[string]struct{}, len(agencies))
	for _, name := range agencies {
		wanted[name] = struct{}{}
	}

	var numbers []string
	for _, bundle := range d.Agencies {
		if _, ok := wanted[bundle.Name]; !ok {
			continue
		}
		for _, group := range bundle.Groups {
			numbers = append(numbers, group.Numbers...)
		}
	}
	return numbers
}

// Document is a single register entry. Title, Abstract and URL are optional.
type Document struct {
	Number   string
	Title    string
	Abstract string
	URL      string
}

// HasAbstract reports whether the document carries any abstract text.
func (d Document) HasAbstract() bool {
	return strings.TrimSpace(d.Abstract) != ""
}

// IsBoilerplate reports whether the abstract contains any of the procedural markers.
func (d Document) IsBoilerplate(markers []string) bool {
	for _, marker := range markers {
		if marker != "" && strings.Contains(d.Abstract, marker) {
			return true
		}
	}
	return false
}

// PublicationDate resolves which issue a run at now should target. Issues are
// published early morning US Eastern, so runs before the cutoff hour (UTC)
// use the previous calendar day.
func PublicationDate(now time.Time, cutoffHourUTC int) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if now.Hour() < cutoffHourUTC {
		return day.AddDate(0, 0, -1)
	}
	return day
}
