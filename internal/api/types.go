package api

import (
	"time"

	"github.com/dcwatch/dcwatch/internal/aggregator"
	"github.com/dcwatch/dcwatch/internal/alerts"
	"github.com/dcwatch/dcwatch/internal/registry"
)

// SilenceMatcher is the wire form of a silence matcher. isEqual defaults to
// true when omitted, matching the Alertmanager v2 API.
type SilenceMatcher struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	IsRegex bool   `json:"isRegex"`
	IsEqual *bool  `json:"isEqual,omitempty"`
}

// ToMatcher converts the wire matcher into the canonical form
func (m SilenceMatcher) ToMatcher() alerts.Matcher {
	isEqual := true
	if m.IsEqual != nil {
		isEqual = *m.IsEqual
	}
	return alerts.Matcher{
		Name:    m.Name,
		Value:   m.Value,
		IsRegex: m.IsRegex,
		IsEqual: isEqual,
	}
}

// CreateSilenceRequest is the request body for POST /api/silence.
type CreateSilenceRequest struct {
	DC        string           `json:"dc"`
	Matchers  []SilenceMatcher `json:"matchers"`
	StartsAt  *time.Time       `json:"startsAt,omitempty"`
	EndsAt    *time.Time       `json:"endsAt,omitempty"`
	Duration  string           `json:"duration,omitempty"` // Go duration string, e.g. "2h"
	Comment   string           `json:"comment,omitempty"`
	CreatedBy string           `json:"createdBy,omitempty"`
	ID        string           `json:"id,omitempty"` // silence to replace
}

// CreateSilenceResponse is the response body for POST /api/silence.
type CreateSilenceResponse struct {
	SilenceID string `json:"silence_id"`
}

// UnsilenceRequest is the request body for POST /api/unsilence.
type UnsilenceRequest struct {
	DC string `json:"dc"`
	ID string `json:"id"`
}

// AlertsResponse is the response body for GET /api/alerts.
type AlertsResponse struct {
	GeneratedAt time.Time                      `json:"generated_at"`
	CycleID     string                         `json:"cycle_id"`
	ByDC        map[string][]alerts.Alert      `json:"by_dc"`
	Counts      map[string]aggregator.DCCounts `json:"counts"`
	Sources     []aggregator.SourceStatus      `json:"sources"`
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status      string                     `json:"status"`
	GeneratedAt *time.Time                 `json:"generated_at,omitempty"`
	Sources     map[string]registry.Health `json:"sources"`
}
