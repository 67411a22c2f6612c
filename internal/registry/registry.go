// Package registry holds the static configuration of alert sources and their
// runtime health state. Source configs are loaded once at startup; health is
// mutated only by the poller after each fetch attempt.
package registry

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Source is one configured alert source, typically one Alertmanager (or
// Grafana-hosted Alertmanager) per data center.
type Source struct {
	Name     string `yaml:"name"`
	DC       string `yaml:"dc"`
	BaseURL  string `yaml:"base_url"`
	Token    string `yaml:"token"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// MultiDC sources report alerts for several DCs; the DC is then resolved
	// from labels rather than from this entry.
	MultiDC bool `yaml:"multi_dc"`

	// Timeout overrides the global fetch timeout for this source
	Timeout time.Duration `yaml:"-"`
}

// UnmarshalYAML decodes a source entry, accepting the timeout as a Go
// duration string ("30s", "2m").
func (s *Source) UnmarshalYAML(node *yaml.Node) error {
	var aux struct {
		Name     string `yaml:"name"`
		DC       string `yaml:"dc"`
		BaseURL  string `yaml:"base_url"`
		Token    string `yaml:"token"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		MultiDC  bool   `yaml:"multi_dc"`
		Timeout  string `yaml:"timeout"`
	}
	if err := node.Decode(&aux); err != nil {
		return err
	}

	s.Name = aux.Name
	s.DC = aux.DC
	s.BaseURL = aux.BaseURL
	s.Token = aux.Token
	s.User = aux.User
	s.Password = aux.Password
	s.MultiDC = aux.MultiDC
	if aux.Timeout != "" {
		d, err := time.ParseDuration(aux.Timeout)
		if err != nil {
			return fmt.Errorf("source %q: invalid timeout: %w", aux.Name, err)
		}
		s.Timeout = d
	}
	return nil
}

// Health is the runtime health state of one source
type Health struct {
	LastSuccess   time.Time `json:"last_success"`
	FailureStreak int       `json:"failure_streak"`
	LastError     string    `json:"last_error,omitempty"`
}

// File is the on-disk shape of the sources configuration
type File struct {
	CanonicalDCs []string            `yaml:"canonical_dcs"`
	DCSynonyms   map[string][]string `yaml:"dc_synonyms"`
	Sources      []Source            `yaml:"sources"`
}

// Registry owns the source configurations and their health state
type Registry struct {
	mu      sync.RWMutex
	sources []Source
	health  map[string]*Health

	canonicalDCs []string
	dcSynonyms   map[string][]string
}

// Load reads the sources file. Credential fields support ${ENV_VAR}
// expansion so tokens never have to live in the file itself.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}
	return New(file)
}

// New builds a registry from an already-parsed sources file
func New(file File) (*Registry, error) {
	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("no alert sources configured")
	}

	health := make(map[string]*Health, len(file.Sources))
	for i := range file.Sources {
		s := &file.Sources[i]
		s.Token = os.ExpandEnv(s.Token)
		s.User = os.ExpandEnv(s.User)
		s.Password = os.ExpandEnv(s.Password)

		if s.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if s.BaseURL == "" {
			return nil, fmt.Errorf("source %q: base_url is required", s.Name)
		}
		if _, dup := health[s.Name]; dup {
			return nil, fmt.Errorf("duplicate source name %q", s.Name)
		}
		health[s.Name] = &Health{}
	}

	return &Registry{
		sources:      file.Sources,
		health:       health,
		canonicalDCs: file.CanonicalDCs,
		dcSynonyms:   file.DCSynonyms,
	}, nil
}

// Sources returns a copy of all configured sources
func (r *Registry) Sources() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// ByDC returns the source owning the given DC. Matching is case-insensitive;
// a source name also matches so callers can address multi-DC sources directly.
func (r *Registry) ByDC(dc string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sources {
		if strings.EqualFold(s.DC, dc) || strings.EqualFold(s.Name, dc) {
			return s, true
		}
	}
	return Source{}, false
}

// CanonicalDCs returns the configured canonical DC names
func (r *Registry) CanonicalDCs() []string {
	return r.canonicalDCs
}

// DCSynonyms returns the configured DC synonym lists
func (r *Registry) DCSynonyms() map[string][]string {
	return r.dcSynonyms
}

// RecordSuccess resets the failure streak for a source after a good fetch
func (r *Registry) RecordSuccess(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.health[name]; ok {
		h.LastSuccess = at
		h.FailureStreak = 0
		h.LastError = ""
	}
}

// RecordFailure increments the failure streak for a source
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.health[name]; ok {
		h.FailureStreak++
		if err != nil {
			h.LastError = err.Error()
		}
	}
}

// HealthOf returns a copy of one source's health state
func (r *Registry) HealthOf(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.health[name]; ok {
		return *h, true
	}
	return Health{}, false
}

// HealthAll returns a snapshot of every source's health state keyed by name
func (r *Registry) HealthAll() map[string]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Health, len(r.health))
	for name, h := range r.health {
		out[name] = *h
	}
	return out
}
