// Package aggregator merges normalized per-source results into one consistent
// view per poll cycle. Aggregation is a pure function of its inputs; the
// resulting view is published atomically and never mutated afterwards.
package aggregator

import (
	"fmt"
	"sort"
	"time"

	"github.com/dcwatch/dcwatch/internal/alerts"
)

// SourceResult is one source's contribution to a poll cycle. When the fetch
// failed, Alerts carries the previous known-good set with Stale set.
type SourceResult struct {
	SourceName string
	BaseURL    string
	OK         bool
	Stale      bool
	Error      string
	Alerts     []alerts.Alert
	Silences   []alerts.Silence
}

// SourceStatus summarizes one source's outcome for the published view
type SourceStatus struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	OK      bool   `json:"ok"`
	Stale   bool   `json:"stale"`
	Error   string `json:"error,omitempty"`
}

// DCCounts are the per-DC totals of one view
type DCCounts struct {
	Active   int `json:"active"`
	Silenced int `json:"silenced"`
	Stale    int `json:"stale"`
	Total    int `json:"total"`
}

// AggregateView is the merged alert state across all sources for one cycle.
// It is immutable once built.
type AggregateView struct {
	CycleID     string
	GeneratedAt time.Time
	ByDC        map[string][]alerts.Alert
	Counts      map[string]DCCounts
	Silences    []alerts.Silence
	Sources     []SourceStatus
}

// InvariantError is fatal to a single poll cycle: the previous view stays
// authoritative and nothing is published.
type InvariantError struct {
	Fingerprint string
	Detail      string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("aggregation invariant violated for fingerprint %s: %s", e.Fingerprint, e.Detail)
}

// Aggregate unions all normalized alerts keyed by fingerprint, resolves
// silenced state via the collected silences, and derives per-DC counts.
// Conflict resolution on duplicate fingerprints: a fresh alert beats a stale
// one, then the more recently started version wins.
func Aggregate(cycleID string, now time.Time, results []SourceResult) (*AggregateView, error) {
	merged := make(map[string]alerts.Alert)
	var silences []alerts.Silence
	statuses := make([]SourceStatus, 0, len(results))

	for _, res := range results {
		statuses = append(statuses, SourceStatus{
			Name:    res.SourceName,
			BaseURL: res.BaseURL,
			OK:      res.OK,
			Stale:   res.Stale,
			Error:   res.Error,
		})
		silences = append(silences, res.Silences...)

		for _, a := range res.Alerts {
			a.Stale = a.Stale || res.Stale
			existing, seen := merged[a.ID]
			if !seen {
				merged[a.ID] = a
				continue
			}
			if existing.DC != a.DC {
				return nil, &InvariantError{
					Fingerprint: a.ID,
					Detail:      fmt.Sprintf("inconsistent DC assignment %q vs %q", existing.DC, a.DC),
				}
			}
			merged[a.ID] = chooseAlert(existing, a)
		}
	}

	silenceByID := make(map[string]*alerts.Silence, len(silences))
	for i := range silences {
		silenceByID[silences[i].ID] = &silences[i]
	}

	byDC := make(map[string][]alerts.Alert)
	for _, a := range merged {
		a.State = resolveState(a, silences, silenceByID, now)
		byDC[a.DC] = append(byDC[a.DC], a)
	}

	counts := make(map[string]DCCounts, len(byDC))
	for dc, list := range byDC {
		sort.Slice(list, func(i, j int) bool {
			if !list[i].StartsAt.Equal(list[j].StartsAt) {
				return list[i].StartsAt.After(list[j].StartsAt)
			}
			return list[i].Name < list[j].Name
		})
		byDC[dc] = list

		var c DCCounts
		for _, a := range list {
			c.Total++
			if a.Stale {
				c.Stale++
			}
			if a.State == alerts.AlertStateSilenced {
				c.Silenced++
			} else {
				c.Active++
			}
		}
		counts[dc] = c
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })

	return &AggregateView{
		CycleID:     cycleID,
		GeneratedAt: now,
		ByDC:        byDC,
		Counts:      counts,
		Silences:    silences,
		Sources:     statuses,
	}, nil
}

// chooseAlert resolves a fingerprint conflict between two versions of the
// same alert: fresh data beats stale, then the later start wins.
func chooseAlert(old, new alerts.Alert) alerts.Alert {
	if old.Stale != new.Stale {
		if old.Stale {
			return new
		}
		return old
	}
	if new.StartsAt.Before(old.StartsAt) {
		return old
	}
	return new
}

// resolveState decides active vs silenced. An alert is silenced when the
// upstream already attributed it to a still-active silence, or when any
// active silence in the alert's DC has its full matcher set holding against
// the alert's labels.
func resolveState(a alerts.Alert, silences []alerts.Silence, byID map[string]*alerts.Silence, now time.Time) alerts.AlertState {
	for _, sid := range a.SilencedBy {
		if s, ok := byID[sid]; ok && s.ActiveAt(now) {
			return alerts.AlertStateSilenced
		}
	}
	for i := range silences {
		s := &silences[i]
		if s.DC != a.DC {
			continue
		}
		if s.ActiveAt(now) && s.Suppresses(a.Labels) {
			return alerts.AlertStateSilenced
		}
	}
	return alerts.AlertStateActive
}
