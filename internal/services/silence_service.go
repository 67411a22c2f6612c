package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dcwatch/dcwatch/internal/alerts"
	"github.com/dcwatch/dcwatch/internal/registry"
	"github.com/dcwatch/dcwatch/internal/source"
)

// Command validation errors, surfaced immediately to the caller and never
// retried.
var (
	ErrUnknownDC  = errors.New("no source owns the requested dc")
	ErrNoMatchers = errors.New("no valid matchers supplied")
)

// forbiddenMatcherNames are never forwarded upstream. Grafana rejects
// silences carrying its internal rule UID matcher.
var forbiddenMatcherNames = map[string]struct{}{
	"__alert_rule_uid__": {},
}

// defaultSilenceDuration applies when a create request specifies neither an
// end time nor a duration
const defaultSilenceDuration = 2 * time.Hour

// SilenceService forwards silence commands to the source owning the target
// DC. Success means the upstream accepted the command; the aggregate view
// reflects it after the next poll cycle.
type SilenceService struct {
	registry *registry.Registry
	client   *source.Client
}

// NewSilenceService creates a new silence service
func NewSilenceService(reg *registry.Registry, client *source.Client) *SilenceService {
	return &SilenceService{registry: reg, client: client}
}

// CreateSilenceParams describes a silence create or replace command
type CreateSilenceParams struct {
	DC        string
	Matchers  []alerts.Matcher
	StartsAt  time.Time
	EndsAt    time.Time
	Duration  time.Duration
	Comment   string
	CreatedBy string

	// ReplaceID names an existing silence to supersede. The old silence is
	// deleted first; recreate-over-edit works across upstream versions.
	ReplaceID string
}

// CreateSilence validates and forwards a silence to the DC's source,
// returning the upstream silence id.
func (s *SilenceService) CreateSilence(ctx context.Context, p CreateSilenceParams) (string, error) {
	src, ok := s.registry.ByDC(p.DC)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDC, p.DC)
	}

	matchers := sanitizeMatchers(p.Matchers)
	if len(matchers) == 0 {
		return "", ErrNoMatchers
	}

	startsAt := p.StartsAt
	if startsAt.IsZero() {
		startsAt = time.Now().UTC()
	}
	endsAt := p.EndsAt
	if endsAt.IsZero() {
		d := p.Duration
		if d <= 0 {
			d = defaultSilenceDuration
		}
		endsAt = startsAt.Add(d)
	}
	if !endsAt.After(startsAt) {
		endsAt = startsAt.Add(time.Minute)
	}

	createdBy := p.CreatedBy
	if createdBy == "" {
		createdBy = "dcwatch"
	}

	if p.ReplaceID != "" {
		if err := s.client.DeleteSilence(ctx, src, p.ReplaceID); err != nil {
			log.Printf("Delete of replaced silence %s on %s failed: %v", p.ReplaceID, src.Name, err)
		}
	}

	id, err := s.client.CreateSilence(ctx, src, source.SilenceRequest{
		Matchers:  matchers,
		StartsAt:  startsAt,
		EndsAt:    endsAt,
		CreatedBy: createdBy,
		Comment:   p.Comment,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create silence on %s: %w", src.Name, err)
	}
	return id, nil
}

// Unsilence expires a silence on the source owning the DC
func (s *SilenceService) Unsilence(ctx context.Context, dc, silenceID string) error {
	src, ok := s.registry.ByDC(dc)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDC, dc)
	}
	if err := s.client.DeleteSilence(ctx, src, silenceID); err != nil {
		return fmt.Errorf("failed to delete silence %s on %s: %w", silenceID, src.Name, err)
	}
	return nil
}

// sanitizeMatchers drops forbidden and nameless matchers
func sanitizeMatchers(in []alerts.Matcher) []alerts.Matcher {
	out := make([]alerts.Matcher, 0, len(in))
	for _, m := range in {
		if m.Name == "" {
			continue
		}
		if _, forbidden := forbiddenMatcherNames[m.Name]; forbidden {
			continue
		}
		out = append(out, m)
	}
	return out
}
