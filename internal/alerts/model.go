package alerts

import (
	"regexp"
	"time"
)

// AlertState represents the normalized state of an alert in the aggregate view
type AlertState string

const (
	AlertStateActive   AlertState = "active"
	AlertStateSilenced AlertState = "silenced"
)

// DCUnknown is assigned when no data center identity can be resolved for an alert
const DCUnknown = "unknown"

// Alert is the canonical alert entity produced by the Normalizer.
// An Alert is created fresh each poll cycle and never mutated afterwards;
// the next cycle's version supersedes it.
type Alert struct {
	ID          string            `json:"id"` // deterministic fingerprint, see fingerprint.go
	DC          string            `json:"dc"`
	Name        string            `json:"name"`
	Severity    string            `json:"severity"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	State       AlertState        `json:"state"`
	Stale       bool              `json:"stale"`
	StartsAt    time.Time         `json:"starts_at"`
	EndsAt      *time.Time        `json:"ends_at,omitempty"`
	SourceID    string            `json:"source_id"`
	SourceURL   string            `json:"source_url,omitempty"`
	SilencedBy  []string          `json:"silenced_by,omitempty"`
}

// Matcher is a single label condition of a Silence
type Matcher struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	IsRegex bool   `json:"isRegex"`
	IsEqual bool   `json:"isEqual"`
}

// Matches reports whether the matcher condition holds against the label set.
// An invalid regex never matches.
func (m Matcher) Matches(labels map[string]string) bool {
	value, ok := labels[m.Name]

	var matched bool
	if m.IsRegex {
		re, err := regexp.Compile("^(?:" + m.Value + ")$")
		if err != nil {
			return false
		}
		matched = ok && re.MatchString(value)
	} else {
		matched = ok && value == m.Value
	}

	if m.IsEqual {
		return matched
	}
	return !matched
}

// Silence is the canonical silence entity, either discovered via poll or
// created through the command API.
type Silence struct {
	ID        string    `json:"id"`
	DC        string    `json:"dc"`
	Matchers  []Matcher `json:"matchers"`
	CreatedBy string    `json:"created_by"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Comment   string    `json:"comment"`
	Status    string    `json:"status"`
	SourceID  string    `json:"source_id"`
}

// ActiveAt reports whether the silence window covers the given time.
// Silences the upstream marks expired are never active.
func (s *Silence) ActiveAt(t time.Time) bool {
	if s.Status == "expired" {
		return false
	}
	if !s.StartsAt.IsZero() && t.Before(s.StartsAt) {
		return false
	}
	if !s.EndsAt.IsZero() && !t.Before(s.EndsAt) {
		return false
	}
	return true
}

// Suppresses reports whether this silence suppresses an alert with the given
// labels. Every matcher must hold (conjunctive). A silence with no matchers
// suppresses nothing.
func (s *Silence) Suppresses(labels map[string]string) bool {
	if len(s.Matchers) == 0 {
		return false
	}
	for _, m := range s.Matchers {
		if !m.Matches(labels) {
			return false
		}
	}
	return true
}
