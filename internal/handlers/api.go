// Package handlers wires the query and command API over the aggregation
// core. Handlers only read the last published view and snapshot history;
// they never block on an in-flight poll cycle.
package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dcwatch/dcwatch/internal/aggregator"
	"github.com/dcwatch/dcwatch/internal/alerts"
	"github.com/dcwatch/dcwatch/internal/api"
	"github.com/dcwatch/dcwatch/internal/registry"
	"github.com/dcwatch/dcwatch/internal/reports"
	"github.com/dcwatch/dcwatch/internal/services"
	"github.com/dcwatch/dcwatch/internal/source"
)

// APIHandler serves the alert view, reports and silence command endpoints
type APIHandler struct {
	holder   *aggregator.ViewHolder
	registry *registry.Registry
	reports  *reports.Engine
	silences *services.SilenceService

	// refresh triggers an immediate poll cycle after a silence command so
	// the view converges faster than the regular interval. May be nil.
	refresh func()
}

// NewAPIHandler creates the API handler
func NewAPIHandler(holder *aggregator.ViewHolder, reg *registry.Registry, reportEngine *reports.Engine, silenceService *services.SilenceService) *APIHandler {
	return &APIHandler{
		holder:   holder,
		registry: reg,
		reports:  reportEngine,
		silences: silenceService,
	}
}

// SetRefresher registers the function used to trigger an immediate poll cycle
func (h *APIHandler) SetRefresher(fn func()) {
	h.refresh = fn
}

// SetupRoutes configures all HTTP routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/alerts", h.handleAlerts)
	mux.HandleFunc("GET /api/report/daily", h.handleReportDaily)
	mux.HandleFunc("GET /api/report/weekly", h.handleReportWeekly)
	mux.HandleFunc("GET /api/report/monthly", h.handleReportMonthly)
	mux.HandleFunc("POST /api/silence", h.handleCreateSilence)
	mux.HandleFunc("POST /api/unsilence", h.handleUnsilence)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}

func (h *APIHandler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	// force=1 kicks off an immediate poll cycle in the background; the
	// response still serves the last published view
	if f := r.URL.Query().Get("force"); f == "1" || strings.EqualFold(f, "true") {
		h.triggerRefresh()
	}

	view := h.holder.Current()
	if view == nil {
		api.RespondJSON(w, http.StatusOK, api.AlertsResponse{
			GeneratedAt: time.Now().UTC(),
			ByDC:        map[string][]alerts.Alert{},
			Counts:      map[string]aggregator.DCCounts{},
			Sources:     []aggregator.SourceStatus{},
		})
		return
	}

	resp := api.AlertsResponse{
		GeneratedAt: view.GeneratedAt,
		CycleID:     view.CycleID,
		ByDC:        view.ByDC,
		Counts:      view.Counts,
		Sources:     view.Sources,
	}

	if q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q"))); q != "" {
		resp.ByDC = filterByQuery(view.ByDC, q)
	}

	api.RespondJSON(w, http.StatusOK, resp)
}

// filterByQuery keeps alerts whose name or summary-style annotations contain
// the query substring. The shared view is never mutated.
func filterByQuery(byDC map[string][]alerts.Alert, q string) map[string][]alerts.Alert {
	out := make(map[string][]alerts.Alert, len(byDC))
	for dc, list := range byDC {
		filtered := make([]alerts.Alert, 0, len(list))
		for _, a := range list {
			haystack := strings.ToLower(strings.Join([]string{
				a.Name,
				a.Annotations["summary"],
				a.Annotations["message"],
				a.Annotations["description"],
			}, " "))
			if strings.Contains(haystack, q) {
				filtered = append(filtered, a)
			}
		}
		out[dc] = filtered
	}
	return out
}

func (h *APIHandler) handleReportDaily(w http.ResponseWriter, r *http.Request) {
	date := h.dateParam(r)
	report, err := h.reports.Daily(date)
	h.respondReport(w, report, err)
}

func (h *APIHandler) handleReportWeekly(w http.ResponseWriter, r *http.Request) {
	endDay := h.dateParam(r)
	report, err := h.reports.Weekly(endDay)
	h.respondReport(w, report, err)
}

func (h *APIHandler) handleReportMonthly(w http.ResponseWriter, r *http.Request) {
	now := time.Now().In(h.reports.Location())
	year := intParam(r, "y", now.Year())
	month := intParam(r, "m", int(now.Month()))
	if month < 1 || month > 12 {
		api.RespondError(w, http.StatusBadRequest, "month must be between 1 and 12")
		return
	}
	report, err := h.reports.Monthly(year, time.Month(month))
	h.respondReport(w, report, err)
}

// dateParam builds a date from y/m/d query parameters, defaulting to today
// in the report timezone
func (h *APIHandler) dateParam(r *http.Request) time.Time {
	now := time.Now().In(h.reports.Location())
	year := intParam(r, "y", now.Year())
	month := intParam(r, "m", int(now.Month()))
	day := intParam(r, "d", now.Day())
	return time.Date(year, time.Month(month), day, 12, 0, 0, 0, h.reports.Location())
}

func (h *APIHandler) respondReport(w http.ResponseWriter, report *reports.Report, err error) {
	if err != nil {
		log.Printf("Report query failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	api.RespondJSON(w, http.StatusOK, report)
}

func (h *APIHandler) handleCreateSilence(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSilenceRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DC == "" {
		api.RespondError(w, http.StatusBadRequest, "dc is required")
		return
	}

	matchers := make([]alerts.Matcher, 0, len(req.Matchers))
	for _, m := range req.Matchers {
		matchers = append(matchers, m.ToMatcher())
	}

	params := services.CreateSilenceParams{
		DC:        req.DC,
		Matchers:  matchers,
		Comment:   req.Comment,
		CreatedBy: req.CreatedBy,
		ReplaceID: req.ID,
	}
	if req.StartsAt != nil {
		params.StartsAt = *req.StartsAt
	}
	if req.EndsAt != nil {
		params.EndsAt = *req.EndsAt
	}
	if req.Duration != "" {
		d, err := parseDuration(req.Duration)
		if err != nil {
			api.RespondError(w, http.StatusBadRequest, "invalid duration")
			return
		}
		params.Duration = d
	}

	id, err := h.silences.CreateSilence(r.Context(), params)
	if err != nil {
		h.respondCommandError(w, err)
		return
	}

	h.triggerRefresh()
	api.RespondJSON(w, http.StatusCreated, api.CreateSilenceResponse{SilenceID: id})
}

func (h *APIHandler) handleUnsilence(w http.ResponseWriter, r *http.Request) {
	var req api.UnsilenceRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DC == "" || req.ID == "" {
		api.RespondError(w, http.StatusBadRequest, "dc and id are required")
		return
	}

	if err := h.silences.Unsilence(r.Context(), req.DC, req.ID); err != nil {
		h.respondCommandError(w, err)
		return
	}

	h.triggerRefresh()
	api.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

/// respondCommandError maps command failures onto HTTP statuses: invalid
// commands are the caller's fault, upstream failures are gateway errors.
func (h *APIHandler) respondCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownDC), errors.Is(err, services.ErrNoMatchers):
		api.RespondErrorWithCode(w, http.StatusBadRequest, "invalid_command", err.Error())
	case source.IsNotFound(err):
		api.RespondErrorWithCode(w, http.StatusNotFound, "not_found", err.Error())
	default:
		api.RespondErrorWithCode(w, http.StatusBadGateway, "source_unreachable", err.Error())
	}
}

func (h *APIHandler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		Status:  "ok",
		Sources: h.registry.HealthAll(),
	}
	if view := h.holder.Current(); view != nil {
		generated := view.GeneratedAt
		resp.GeneratedAt = &generated
	}
	api.RespondJSON(w, http.StatusOK, resp)
}

// triggerRefresh starts an immediate poll cycle in the background so the
// next read reflects the command sooner. The command response never waits
// for it.
func (h *APIHandler) triggerRefresh() {
	if h.refresh != nil {
		go h.refresh()
	}
}

func intParam(r *http.Request, name string, defaultValue int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

// parseDuration accepts Go duration strings and bare second counts
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}
