package alerts

import "time"

// RawAlert is an alert as returned by one source's Alertmanager v2 API.
// Raw payloads are transient: they exist only within one poll cycle's
// processing and are never persisted.
type RawAlert struct {
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Fingerprint  string            `json:"fingerprint"`
	Status       RawAlertStatus    `json:"status"`
}

// RawAlertStatus carries the upstream state and silence references
type RawAlertStatus struct {
	State      string   `json:"state"`
	SilencedBy []string `json:"silencedBy"`
}

// RawSilence is a silence as returned by one source's Alertmanager v2 API
type RawSilence struct {
	ID        string           `json:"id"`
	Matchers  []Matcher        `json:"matchers"`
	CreatedBy string           `json:"createdBy"`
	StartsAt  time.Time        `json:"startsAt"`
	EndsAt    time.Time        `json:"endsAt"`
	Comment   string           `json:"comment"`
	Status    RawSilenceStatus `json:"status"`
}

// RawSilenceStatus carries the upstream silence lifecycle state
type RawSilenceStatus struct {
	State string `json:"state"`
}
