package alerts

import (
	"testing"
	"time"
)

func newTestNormalizer() *Normalizer {
	n := NewNormalizer(
		[]string{"DC", "dc", "site"},
		[]string{"alertname", "alert_name"},
		[]string{"severity", "priority"},
		[]string{"__alert_rule_uid__", "pod"},
	)
	n.SetCanonicalDCs(
		[]string{"fra", "nyc"},
		map[string][]string{
			"fra": {"frankfurt", "eu-central"},
			"nyc": {"newyork", "us-east"},
		},
	)
	return n
}

func TestResolveDC(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name string
		src  SourceInfo
		raw  RawAlert
		want string
	}{
		{
			name: "single-DC source wins over labels",
			src:  SourceInfo{ID: "am-fra", DC: "fra"},
			raw:  RawAlert{Labels: map[string]string{"dc": "nyc"}},
			want: "fra",
		},
		{
			name: "multi-DC source reads DC label",
			src:  SourceInfo{ID: "grafana", DC: "fra", MultiDC: true},
			raw:  RawAlert{Labels: map[string]string{"DC": "nyc"}},
			want: "nyc",
		},
		{
			name: "DC label synonym canonicalized",
			src:  SourceInfo{ID: "grafana", DC: "fra", MultiDC: true},
			raw:  RawAlert{Labels: map[string]string{"dc": "Frankfurt"}},
			want: "fra",
		},
		{
			name: "unrecognized DC label passes through",
			src:  SourceInfo{ID: "grafana", MultiDC: true},
			raw:  RawAlert{Labels: map[string]string{"dc": "sin"}},
			want: "sin",
		},
		{
			name: "DC detected from summary text",
			src:  SourceInfo{ID: "grafana", MultiDC: true},
			raw: RawAlert{
				Labels:      map[string]string{"alertname": "LinkDown"},
				Annotations: map[string]string{"summary": "uplink down in newyork rack 4"},
			},
			want: "nyc",
		},
		{
			name: "falls back to source DC",
			src:  SourceInfo{ID: "grafana", DC: "fra", MultiDC: true},
			raw:  RawAlert{Labels: map[string]string{"alertname": "LinkDown"}},
			want: "fra",
		},
		{
			name: "unknown when nothing resolves",
			src:  SourceInfo{ID: "grafana", MultiDC: true},
			raw:  RawAlert{Labels: map[string]string{"alertname": "LinkDown"}},
			want: DCUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.resolveDC(tt.src, tt.raw); got != tt.want {
				t.Errorf("resolveDC() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeAlerts(t *testing.T) {
	n := newTestNormalizer()
	src := SourceInfo{ID: "am-fra", DC: "fra", BaseURL: "http://am-fra:9093"}

	starts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ends := starts.Add(2 * time.Hour)

	raws := []RawAlert{
		{
			Labels:      map[string]string{"alertname": "HighCPU", "severity": "disaster"},
			Annotations: map[string]string{"summary": "cpu above 95%"},
			StartsAt:    starts,
			EndsAt:      ends,
			Status:      RawAlertStatus{State: "suppressed", SilencedBy: []string{"sil-1"}},
		},
		{
			// no name key, severity only in annotations
			Labels:      map[string]string{"host": "node-3"},
			Annotations: map[string]string{"priority": "P3"},
			StartsAt:    starts,
		},
	}

	out := n.NormalizeAlerts(src, raws)
	if len(out) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(out))
	}

	first := out[0]
	if first.DC != "fra" {
		t.Errorf("expected DC fra, got %q", first.DC)
	}
	if first.Name != "HighCPU" {
		t.Errorf("expected name HighCPU, got %q", first.Name)
	}
	if first.Severity != "critical" {
		t.Errorf("expected normalized severity critical, got %q", first.Severity)
	}
	if first.ID == "" {
		t.Error("expected fingerprint to be set")
	}
	if first.EndsAt == nil || !first.EndsAt.Equal(ends) {
		t.Errorf("expected ends_at %v, got %v", ends, first.EndsAt)
	}
	if len(first.SilencedBy) != 1 || first.SilencedBy[0] != "sil-1" {
		t.Errorf("expected silenced_by [sil-1], got %v", first.SilencedBy)
	}

	second := out[1]
	if second.Name != "unlabeled" {
		t.Errorf("expected degraded name unlabeled, got %q", second.Name)
	}
	if second.Severity != "warning" {
		t.Errorf("expected severity warning from annotation P3, got %q", second.Severity)
	}
	if second.EndsAt != nil {
		t.Errorf("expected nil ends_at, got %v", second.EndsAt)
	}
}

func TestNormalizeAlertsFingerprintSkipsIgnoredLabels(t *testing.T) {
	n := newTestNormalizer()
	src := SourceInfo{ID: "am-fra", DC: "fra"}

	a := n.NormalizeAlerts(src, []RawAlert{{
		Labels: map[string]string{"alertname": "CrashLoop", "pod": "api-1"},
	}})
	b := n.NormalizeAlerts(src, []RawAlert{{
		Labels: map[string]string{"alertname": "CrashLoop", "pod": "api-2"},
	}})

	if a[0].ID != b[0].ID {
		t.Errorf("expected stable identity across pod restarts, got %s vs %s", a[0].ID, b[0].ID)
	}
}

func TestNormalizeSilences(t *testing.T) {
	n := newTestNormalizer()
	src := SourceInfo{ID: "am-nyc", DC: "nyc"}

	raws := []RawSilence{
		{
			ID:        "sil-1",
			Matchers:  []Matcher{{Name: "alertname", Value: "HighCPU", IsEqual: true}},
			CreatedBy: "alice",
			Comment:   "maintenance",
			Status:    RawSilenceStatus{State: "active"},
		},
		{ID: ""}, // malformed, dropped
	}

	out := n.NormalizeSilences(src, raws)
	if len(out) != 1 {
		t.Fatalf("expected 1 silence, got %d", len(out))
	}
	if out[0].DC != "nyc" {
		t.Errorf("expected DC nyc, got %q", out[0].DC)
	}
	if out[0].Status != "active" {
		t.Errorf("expected status active, got %q", out[0].Status)
	}
	if out[0].SourceID != "am-nyc" {
		t.Errorf("expected source am-nyc, got %q", out[0].SourceID)
	}
}

func TestNormalizeSeverity(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"disaster", "critical"},
		{"P1", "critical"},
		{"Major", "high"},
		{"warn", "warning"},
		{"notice", "info"},
		{"custom-level", "custom-level"},
		{"", "unknown"},
	}

	for _, tt := range tests {
		if got := NormalizeSeverity(tt.in); got != tt.want {
			t.Errorf("NormalizeSeverity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
