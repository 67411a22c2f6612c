package testhelpers

import (
	"time"

	"github.com/dcwatch/dcwatch/internal/alerts"
)

// ========================================
// Data Builders
// ========================================

// AlertBuilder builds canonical alerts for tests
type AlertBuilder struct {
	alert alerts.Alert
}

// NewAlertBuilder creates a builder with sensible defaults. The identity
// is derived from the DC and labels exactly as the normalizer would do it.
func NewAlertBuilder(dc, name string) *AlertBuilder {
	labels := map[string]string{"alertname": name}
	return &AlertBuilder{alert: alerts.Alert{
		ID:          alerts.Fingerprint(dc, labels, nil),
		DC:          dc,
		Name:        name,
		Severity:    "warning",
		Labels:      labels,
		Annotations: map[string]string{},
		State:       alerts.AlertStateActive,
		StartsAt:    time.Now().UTC().Add(-time.Hour),
		SourceID:    dc,
	}}
}

func (b *AlertBuilder) WithLabel(key, value string) *AlertBuilder {
	b.alert.Labels[key] = value
	b.alert.ID = alerts.Fingerprint(b.alert.DC, b.alert.Labels, nil)
	return b
}

func (b *AlertBuilder) WithSeverity(severity string) *AlertBuilder {
	b.alert.Severity = severity
	return b
}

func (b *AlertBuilder) WithState(state alerts.AlertState) *AlertBuilder {
	b.alert.State = state
	return b
}

func (b *AlertBuilder) WithSilencedBy(ids ...string) *AlertBuilder {
	b.alert.SilencedBy = ids
	return b
}

func (b *AlertBuilder) WithStartsAt(t time.Time) *AlertBuilder {
	b.alert.StartsAt = t
	return b
}

func (b *AlertBuilder) WithStale(stale bool) *AlertBuilder {
	b.alert.Stale = stale
	return b
}

func (b *AlertBuilder) WithSource(id string) *AlertBuilder {
	b.alert.SourceID = id
	return b
}

// Build returns the constructed alert
func (b *AlertBuilder) Build() alerts.Alert {
	return b.alert
}

// SilenceBuilder builds silences for tests
type SilenceBuilder struct {
	silence alerts.Silence
}

func NewSilenceBuilder(id, dc string) *SilenceBuilder {
	now := time.Now().UTC()
	return &SilenceBuilder{silence: alerts.Silence{
		ID:       id,
		DC:       dc,
		Status:   "active",
		StartsAt: now.Add(-time.Hour),
		EndsAt:   now.Add(time.Hour),
	}}
}

func (b *SilenceBuilder) WithMatcher(name, value string, isRegex, isEqual bool) *SilenceBuilder {
	b.silence.Matchers = append(b.silence.Matchers, alerts.Matcher{
		Name:    name,
		Value:   value,
		IsRegex: isRegex,
		IsEqual: isEqual,
	})
	return b
}

func (b *SilenceBuilder) WithStatus(status string) *SilenceBuilder {
	b.silence.Status = status
	return b
}

func (b *SilenceBuilder) WithWindow(starts, ends time.Time) *SilenceBuilder {
	b.silence.StartsAt = starts
	b.silence.EndsAt = ends
	return b
}

// Build returns the constructed silence
func (b *SilenceBuilder) Build() alerts.Silence {
	return b.silence
}
