package alerts

import (
	"strings"
)

// SourceInfo identifies the source a raw payload came from during normalization
type SourceInfo struct {
	ID      string
	DC      string
	MultiDC bool
	BaseURL string
}

// Normalizer maps raw alert and silence payloads into the canonical model.
// Malformed or partial upstream data degrades individual fields; it never
// aborts a poll cycle.
type Normalizer struct {
	dcLabelKeys   []string
	nameKeys      []string
	severityKeys  []string
	ignoredLabels []string

	// canonical DC names and their synonyms, used as a last resort when a
	// multi-DC source carries the DC only in free-form annotation text
	canonicalDCs []string
	dcSynonyms   map[string][]string
}

// NewNormalizer creates a normalizer with the given extraction key lists
func NewNormalizer(dcLabelKeys, nameKeys, severityKeys, ignoredLabels []string) *Normalizer {
	return &Normalizer{
		dcLabelKeys:   dcLabelKeys,
		nameKeys:      nameKeys,
		severityKeys:  severityKeys,
		ignoredLabels: ignoredLabels,
	}
}

// SetCanonicalDCs configures canonical DC names and synonym lists for
// text-based DC detection on multi-DC sources
func (n *Normalizer) SetCanonicalDCs(canonical []string, synonyms map[string][]string) {
	n.canonicalDCs = canonical
	n.dcSynonyms = synonyms
}

// IgnoredLabels returns the label keys excluded from fingerprinting
func (n *Normalizer) IgnoredLabels() []string {
	return n.ignoredLabels
}

// NormalizeAlerts converts one source's raw alerts into canonical Alerts.
// Every alert gets a deterministic fingerprint; alerts the upstream reports
// as suppressed keep their silence references for the aggregator.
func (n *Normalizer) NormalizeAlerts(src SourceInfo, raws []RawAlert) []Alert {
	out := make([]Alert, 0, len(raws))
	for _, raw := range raws {
		dc := n.resolveDC(src, raw)

		a := Alert{
			ID:          Fingerprint(dc, raw.Labels, n.ignoredLabels),
			DC:          dc,
			Name:        n.extractName(raw),
			Severity:    n.extractSeverity(raw),
			Labels:      raw.Labels,
			Annotations: raw.Annotations,
			State:       AlertStateActive,
			StartsAt:    raw.StartsAt,
			SourceID:    src.ID,
			SourceURL:   src.BaseURL,
			SilencedBy:  raw.Status.SilencedBy,
		}
		if !raw.EndsAt.IsZero() {
			ends := raw.EndsAt
			a.EndsAt = &ends
		}
		out = append(out, a)
	}
	return out
}

// NormalizeSilences converts one source's raw silences into canonical
// Silences, attributed to the source's DC.
func (n *Normalizer) NormalizeSilences(src SourceInfo, raws []RawSilence) []Silence {
	out := make([]Silence, 0, len(raws))
	for _, raw := range raws {
		if raw.ID == "" {
			continue
		}
		dc := src.DC
		if dc == "" {
			dc = DCUnknown
		}
		out = append(out, Silence{
			ID:        raw.ID,
			DC:        dc,
			Matchers:  raw.Matchers,
			CreatedBy: raw.CreatedBy,
			StartsAt:  raw.StartsAt,
			EndsAt:    raw.EndsAt,
			Comment:   raw.Comment,
			Status:    raw.Status.State,
			SourceID:  src.ID,
		})
	}
	return out
}

// resolveDC determines the DC an alert belongs to. Resolution order: the
// registry's DC id for single-DC sources, then configured DC label keys,
// then a synonym scan over labels and annotation text, then "unknown".
func (n *Normalizer) resolveDC(src SourceInfo, raw RawAlert) string {
	if !src.MultiDC && src.DC != "" {
		return src.DC
	}

	for _, key := range n.dcLabelKeys {
		if v := raw.Labels[key]; v != "" {
			if canon := n.canonicalize(v); canon != "" {
				return canon
			}
			return v
		}
	}

	if dc := n.detectDCFromText(raw); dc != "" {
		return dc
	}

	if src.DC != "" {
		return src.DC
	}
	return DCUnknown
}

// canonicalize maps a DC label value onto a configured canonical DC name
func (n *Normalizer) canonicalize(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, canon := range n.canonicalDCs {
		if v == strings.ToLower(canon) {
			return canon
		}
		for _, syn := range n.dcSynonyms[canon] {
			if v == strings.ToLower(syn) {
				return canon
			}
		}
	}
	return ""
}

// detectDCFromText scans summary-style annotations for DC synonyms
func (n *Normalizer) detectDCFromText(raw RawAlert) string {
	if len(n.canonicalDCs) == 0 {
		return ""
	}
	parts := []string{
		raw.Annotations["summary"],
		raw.Annotations["message"],
		raw.Annotations["description"],
		raw.Annotations["body"],
	}
	text := strings.ToLower(strings.Join(parts, " "))
	for _, canon := range n.canonicalDCs {
		if strings.Contains(text, strings.ToLower(canon)) {
			return canon
		}
		for _, syn := range n.dcSynonyms[canon] {
			if syn != "" && strings.Contains(text, strings.ToLower(syn)) {
				return canon
			}
		}
	}
	return ""
}

func (n *Normalizer) extractName(raw RawAlert) string {
	for _, key := range n.nameKeys {
		if v := raw.Labels[key]; v != "" {
			return v
		}
	}
	return "unlabeled"
}

func (n *Normalizer) extractSeverity(raw RawAlert) string {
	for _, key := range n.severityKeys {
		if v := raw.Labels[key]; v != "" {
			return NormalizeSeverity(v)
		}
		if v := raw.Annotations[key]; v != "" {
			return NormalizeSeverity(v)
		}
	}
	return "unknown"
}

// NormalizeSeverity maps source-specific severity values to standard ones.
// Unmapped values pass through lowercased rather than failing.
func NormalizeSeverity(severity string) string {
	s := strings.ToLower(strings.TrimSpace(severity))
	for normalized, aliases := range defaultSeverityMapping {
		for _, alias := range aliases {
			if s == alias {
				return normalized
			}
		}
	}
	if s == "" {
		return "unknown"
	}
	return s
}

// defaultSeverityMapping covers the common spellings across alerting backends
var defaultSeverityMapping = map[string][]string{
	"critical": {"critical", "disaster", "p1", "emergency", "fatal"},
	"high":     {"high", "major", "p2", "error", "severe"},
	"warning":  {"warning", "minor", "p3", "average", "warn"},
	"info":     {"info", "informational", "p4", "low", "notice", "debug"},
}
