package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dcwatch/dcwatch/internal/aggregator"
	"github.com/dcwatch/dcwatch/internal/alerts"
	"github.com/dcwatch/dcwatch/internal/api"
	"github.com/dcwatch/dcwatch/internal/database"
	"github.com/dcwatch/dcwatch/internal/jobs"
	"github.com/dcwatch/dcwatch/internal/registry"
	"github.com/dcwatch/dcwatch/internal/reports"
	"github.com/dcwatch/dcwatch/internal/services"
	"github.com/dcwatch/dcwatch/internal/source"
	"github.com/dcwatch/dcwatch/internal/testhelpers"
)

// fakeAlertmanager emulates one upstream's v2 API with mutable state
type fakeAlertmanager struct {
	mu       sync.Mutex
	alerts   []alerts.RawAlert
	silences []alerts.RawSilence
	nextID   int
}

func (f *fakeAlertmanager) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v2/alerts", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(f.alerts)
	})
	mux.HandleFunc("GET /api/v2/silences", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(f.silences)
	})
	mux.HandleFunc("POST /api/v2/silences", func(w http.ResponseWriter, r *http.Request) {
		var req source.SilenceRequest
		json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.nextID++
		id := fmt.Sprintf("sil-%d", f.nextID)
		f.silences = append(f.silences, alerts.RawSilence{
			ID:        id,
			Matchers:  req.Matchers,
			CreatedBy: req.CreatedBy,
			StartsAt:  req.StartsAt,
			EndsAt:    req.EndsAt,
			Comment:   req.Comment,
			Status:    alerts.RawSilenceStatus{State: "active"},
		})
		f.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]string{"silenceID": id})
	})
	mux.HandleFunc("DELETE /api/v2/silence/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.mu.Lock()
		defer f.mu.Unlock()
		for i := range f.silences {
			if f.silences[i].ID == id {
				f.silences[i].Status.State = "expired"
				w.WriteHeader(http.StatusOK)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})
	return httptest.NewServer(mux)
}

func (f *fakeAlertmanager) setAlerts(raws ...alerts.RawAlert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = raws
}

type testStack struct {
	handler *APIHandler
	mux     *http.ServeMux
	poller  *jobs.Poller
	fra     *fakeAlertmanager
	nyc     *fakeAlertmanager
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	fra := &fakeAlertmanager{}
	nyc := &fakeAlertmanager{}
	fraSrv := fra.server()
	nycSrv := nyc.server()
	t.Cleanup(fraSrv.Close)
	t.Cleanup(nycSrv.Close)

	reg, err := registry.New(registry.File{Sources: []registry.Source{
		{Name: "am-fra", DC: "fra", BaseURL: fraSrv.URL},
		{Name: "am-nyc", DC: "nyc", BaseURL: nycSrv.URL},
	}})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}

	client := source.NewClient(5*time.Second, false)
	normalizer := alerts.NewNormalizer(
		[]string{"dc"},
		[]string{"alertname"},
		[]string{"severity"},
		nil,
	)
	holder := aggregator.NewViewHolder()
	poller := jobs.NewPoller(reg, client, normalizer, nil, holder, nil, jobs.Options{})

	store := database.NewSnapshotStore(testhelpers.SetupTestDB(t))
	engine, err := reports.NewEngine(store, "UTC", 10)
	if err != nil {
		t.Fatalf("failed to build report engine: %v", err)
	}

	handler := NewAPIHandler(holder, reg, engine, services.NewSilenceService(reg, client))
	mux := http.NewServeMux()
	handler.SetupRoutes(mux)

	return &testStack{handler: handler, mux: mux, poller: poller, fra: fra, nyc: nyc}
}

func (s *testStack) runCycle(t *testing.T) {
	t.Helper()
	if err := s.poller.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
}

func rawAlert(name string) alerts.RawAlert {
	return alerts.RawAlert{
		Labels:   map[string]string{"alertname": name},
		StartsAt: time.Now().UTC().Add(-time.Hour),
	}
}

func TestAlertsEndpointBeforeFirstCycle(t *testing.T) {
	stack := newTestStack(t)

	var resp api.AlertsResponse
	testhelpers.NewHTTPTestContext(t, "GET", "/api/alerts", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		DecodeBody(&resp)

	if resp.CycleID != "" {
		t.Errorf("expected empty cycle id before first cycle, got %q", resp.CycleID)
	}
	if len(resp.ByDC) != 0 {
		t.Errorf("expected empty view, got %+v", resp.ByDC)
	}
}

func TestAlertsForceTriggersRefresh(t *testing.T) {
	stack := newTestStack(t)

	refreshed := make(chan struct{}, 1)
	stack.handler.SetRefresher(func() { refreshed <- struct{}{} })

	testhelpers.NewHTTPTestContext(t, "GET", "/api/alerts", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK)
	select {
	case <-refreshed:
		t.Fatal("plain read must not trigger a refresh")
	case <-time.After(50 * time.Millisecond):
	}

	testhelpers.NewHTTPTestContext(t, "GET", "/api/alerts?force=1", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK)
	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected force=1 to trigger a refresh cycle")
	}
}

func TestSilenceLifecycleAcrossDCs(t *testing.T) {
	stack := newTestStack(t)
	stack.fra.setAlerts(rawAlert("HighCPU"))
	stack.nyc.setAlerts(rawAlert("HighCPU"))
	stack.runCycle(t)

	// both DCs report the alert active
	var resp api.AlertsResponse
	testhelpers.NewHTTPTestContext(t, "GET", "/api/alerts", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		DecodeBody(&resp)

	if resp.Counts["fra"].Active != 1 || resp.Counts["nyc"].Active != 1 {
		t.Fatalf("expected one active alert per DC, got %+v", resp.Counts)
	}

	// silence the alert in fra only
	var created api.CreateSilenceResponse
	testhelpers.NewHTTPTestContext(t, "POST", "/api/silence", nil).
		WithJSONBody(api.CreateSilenceRequest{
			DC: "fra",
			Matchers: []api.SilenceMatcher{
				{Name: "alertname", Value: "HighCPU"},
			},
			Duration: "1h",
			Comment:  "maintenance",
		}).
		Execute(stack.mux).
		AssertStatus(http.StatusCreated).
		DecodeBody(&created)

	if created.SilenceID == "" {
		t.Fatal("expected silence id in response")
	}

	// the next cycle picks the silence up; nyc is untouched
	stack.runCycle(t)
	testhelpers.NewHTTPTestContext(t, "GET", "/api/alerts", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		DecodeBody(&resp)

	if c := resp.Counts["fra"]; c.Silenced != 1 || c.Active != 0 {
		t.Errorf("expected fra silenced, got %+v", c)
	}
	if c := resp.Counts["nyc"]; c.Active != 1 || c.Silenced != 0 {
		t.Errorf("expected nyc unaffected, got %+v", c)
	}

	// unsilence and verify the alert comes back
	testhelpers.NewHTTPTestContext(t, "POST", "/api/unsilence", nil).
		WithJSONBody(api.UnsilenceRequest{DC: "fra", ID: created.SilenceID}).
		Execute(stack.mux).
		AssertStatus(http.StatusOK)

	stack.runCycle(t)
	testhelpers.NewHTTPTestContext(t, "GET", "/api/alerts", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		DecodeBody(&resp)

	if c := resp.Counts["fra"]; c.Active != 1 || c.Silenced != 0 {
		t.Errorf("expected fra active again, got %+v", c)
	}
}

func TestAlertsQueryFilter(t *testing.T) {
	stack := newTestStack(t)
	stack.fra.setAlerts(rawAlert("HighCPU"), rawAlert("DiskFull"))
	stack.runCycle(t)

	var resp api.AlertsResponse
	testhelpers.NewHTTPTestContext(t, "GET", "/api/alerts?q=disk", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		DecodeBody(&resp)

	if len(resp.ByDC["fra"]) != 1 || resp.ByDC["fra"][0].Name != "DiskFull" {
		t.Errorf("unexpected filtered alerts %+v", resp.ByDC["fra"])
	}
	// counts describe the unfiltered view
	if resp.Counts["fra"].Total != 2 {
		t.Errorf("expected counts untouched by filter, got %+v", resp.Counts)
	}
}

func TestCreateSilenceValidation(t *testing.T) {
	stack := newTestStack(t)

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantSubstr string
	}{
		{
			name:       "missing dc",
			body:       api.CreateSilenceRequest{Matchers: []api.SilenceMatcher{{Name: "a", Value: "b"}}},
			wantStatus: http.StatusBadRequest,
			wantSubstr: "dc is required",
		},
		{
			name: "unknown dc",
			body: api.CreateSilenceRequest{
				DC:       "sin",
				Matchers: []api.SilenceMatcher{{Name: "a", Value: "b"}},
			},
			wantStatus: http.StatusBadRequest,
			wantSubstr: "invalid_command",
		},
		{
			name:       "no matchers",
			body:       api.CreateSilenceRequest{DC: "fra"},
			wantStatus: http.StatusBadRequest,
			wantSubstr: "invalid_command",
		},
		{
			name: "invalid duration",
			body: api.CreateSilenceRequest{
				DC:       "fra",
				Matchers: []api.SilenceMatcher{{Name: "a", Value: "b"}},
				Duration: "soonish",
			},
			wantStatus: http.StatusBadRequest,
			wantSubstr: "invalid duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testhelpers.NewHTTPTestContext(t, "POST", "/api/silence", nil).
				WithJSONBody(tt.body).
				Execute(stack.mux).
				AssertStatus(tt.wantStatus).
				AssertBodyContains(tt.wantSubstr)
		})
	}
}

func TestCreateSilenceMalformedJSON(t *testing.T) {
	stack := newTestStack(t)

	testhelpers.NewHTTPTestContext(t, "POST", "/api/silence", strings.NewReader("{not json")).
		Execute(stack.mux).
		AssertStatus(http.StatusBadRequest)
}

func TestUnsilenceUnknownSilence(t *testing.T) {
	stack := newTestStack(t)

	testhelpers.NewHTTPTestContext(t, "POST", "/api/unsilence", nil).
		WithJSONBody(api.UnsilenceRequest{DC: "fra", ID: "no-such-silence"}).
		Execute(stack.mux).
		AssertStatus(http.StatusNotFound).
		AssertBodyContains("not_found")
}

func TestHealthzReportsSourceHealth(t *testing.T) {
	stack := newTestStack(t)
	stack.runCycle(t)

	var resp api.HealthResponse
	testhelpers.NewHTTPTestContext(t, "GET", "/healthz", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		DecodeBody(&resp)

	if resp.Status != "ok" {
		t.Errorf("expected ok status, got %q", resp.Status)
	}
	if resp.GeneratedAt == nil {
		t.Error("expected view timestamp after a cycle")
	}
	if len(resp.Sources) != 2 {
		t.Errorf("expected 2 source health entries, got %d", len(resp.Sources))
	}
}

func TestReportEndpoints(t *testing.T) {
	stack := newTestStack(t)

	var report reports.Report
	testhelpers.NewHTTPTestContext(t, "GET", "/api/report/daily?y=2026&m=3&d=10", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusOK).
		DecodeBody(&report)
	if report.Period != "daily" {
		t.Errorf("expected daily period, got %q", report.Period)
	}

	testhelpers.NewHTTPTestContext(t, "GET", "/api/report/monthly?y=2026&m=13", nil).
		Execute(stack.mux).
		AssertStatus(http.StatusBadRequest)
}
