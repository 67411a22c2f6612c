// Package reports computes daily, weekly and monthly rollups from the
// snapshot store. Reports read persisted snapshots only, never live sources,
// so they are reproducible regardless of current source availability.
package reports

import (
	"fmt"
	"sort"
	"time"

	"github.com/dcwatch/dcwatch/internal/database"
)

// Engine answers period rollup queries against a snapshot store
type Engine struct {
	store *database.SnapshotStore
	loc   *time.Location
	topN  int
}

// NewEngine creates a report engine. tzName sets the timezone report day
// boundaries are computed in.
func NewEngine(store *database.SnapshotStore, tzName string, topN int) (*Engine, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid report timezone %q: %w", tzName, err)
	}
	if topN <= 0 {
		topN = 10
	}
	return &Engine{store: store, loc: loc, topN: topN}, nil
}

// Location returns the timezone report day boundaries are computed in
func (e *Engine) Location() *time.Location {
	return e.loc
}

// AlertFrequency is one entry of a DC's top-alerts list
type AlertFrequency struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DCSummary aggregates one DC over a report window
type DCSummary struct {
	DC             string           `json:"dc"`
	AlertCountAvg  float64          `json:"alert_count_avg"`
	AlertCountMax  int              `json:"alert_count_max"`
	SilencedRatio  float64          `json:"silenced_ratio"`
	UniqueFired    int              `json:"unique_fired"`
	UniqueSilenced int              `json:"unique_silenced"`
	Samples        int              `json:"samples"`
	TopAlerts      []AlertFrequency `json:"top_alerts"`
}

// AlertDetail is one alert's effective presence within a report window,
// clipped to the window bounds.
type AlertDetail struct {
	AlertName       string            `json:"alertname"`
	Source          string            `json:"source"`
	Fingerprint     string            `json:"fingerprint"`
	States          []string          `json:"states"`
	StartUTC        time.Time         `json:"start_utc"`
	EndUTC          time.Time         `json:"end_utc"`
	DurationSeconds int               `json:"duration_seconds"`
	Labels          map[string]string `json:"labels"`
	Annotations     map[string]string `json:"annotations"`
}

// Report is the result of one rollup query
type Report struct {
	Period       string                   `json:"period"`
	StartUTC     time.Time                `json:"start_utc"`
	EndUTC       time.Time                `json:"end_utc"`
	DaysWithData int                      `json:"days_with_data"`
	GapDays      int                      `json:"gap_days"`
	PerDC        map[string]DCSummary     `json:"per_dc"`
	Details      map[string][]AlertDetail `json:"details"`
}

// Daily reports over one local calendar day
func (e *Engine) Daily(date time.Time) (*Report, error) {
	start, end := e.dayBounds(date)
	return e.buildAt("daily", start, end, time.Now())
}

// Weekly reports over the seven days ending with endDay
func (e *Engine) Weekly(endDay time.Time) (*Report, error) {
	_, end := e.dayBounds(endDay)
	start := end.AddDate(0, 0, -7)
	return e.buildAt("weekly", start, end, time.Now())
}

// Monthly reports over one local calendar month
func (e *Engine) Monthly(year int, month time.Month) (*Report, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, e.loc).UTC()
	end := time.Date(year, month, 1, 0, 0, 0, 0, e.loc).AddDate(0, 1, 0).UTC()
	return e.buildAt("monthly", start, end, time.Now())
}

// dayBounds returns the UTC bounds of the local calendar day containing t
func (e *Engine) dayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(e.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func (e *Engine) buildAt(period string, start, end, now time.Time) (*Report, error) {
	counts, err := e.store.CountsInRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load count rows: %w", err)
	}
	snapshots, err := e.store.SnapshotsInRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	report := &Report{
		Period:   period,
		StartUTC: start,
		EndUTC:   end,
		PerDC:    make(map[string]DCSummary),
		Details:  make(map[string][]AlertDetail),
	}

	e.summarizeCounts(report, counts)
	e.summarizeSnapshots(report, snapshots)
	e.computeGaps(report, counts, start, end, now)

	return report, nil
}

// dcDayStats accumulates one DC's per-day totals for averaging
type dcDayStats struct {
	perDayTotals map[string][]int
	max          int
	sumSilenced  int
	sumTotal     int
	samples      int
}

// summarizeCounts derives alertCountAvg/Max and silencedRatio per DC.
// The average is the mean of daily means, so days with data weigh equally
// and missing days are excluded rather than imputed as zero.
func (e *Engine) summarizeCounts(report *Report, counts []database.DCCount) {
	perDC := make(map[string]*dcDayStats)
	for _, row := range counts {
		st := perDC[row.DC]
		if st == nil {
			st = &dcDayStats{perDayTotals: make(map[string][]int)}
			perDC[row.DC] = st
		}
		day := row.TS.In(e.loc).Format("2006-01-02")
		st.perDayTotals[day] = append(st.perDayTotals[day], row.Total)
		if row.Total > st.max {
			st.max = row.Total
		}
		st.sumSilenced += row.Silenced
		st.sumTotal += row.Total
		st.samples++
	}

	for dc, st := range perDC {
		var dailyMeans float64
		for _, totals := range st.perDayTotals {
			var sum int
			for _, t := range totals {
				sum += t
			}
			dailyMeans += float64(sum) / float64(len(totals))
		}

		summary := report.PerDC[dc]
		summary.DC = dc
		summary.AlertCountAvg = dailyMeans / float64(len(st.perDayTotals))
		summary.AlertCountMax = st.max
		summary.Samples = st.samples
		if st.sumTotal > 0 {
			summary.SilencedRatio = float64(st.sumSilenced) / float64(st.sumTotal)
		}
		report.PerDC[dc] = summary
	}
}

// detailAccum collects one alert's observations within the window
type detailAccum struct {
	first  database.AlertSnapshot
	states map[string]struct{}
	minTS  time.Time
	maxTS  time.Time
	starts *time.Time
	ends   *time.Time
	count  int
}

func (e *Engine) summarizeSnapshots(report *Report, snapshots []database.AlertSnapshot) {
	type key struct {
		dc string
		id string
	}
	accums := make(map[key]*detailAccum)
	fired := make(map[string]map[string]struct{})
	silenced := make(map[string]map[string]struct{})
	nameCounts := make(map[string]map[string]int)

	for _, row := range snapshots {
		id := row.Fingerprint
		if id == "" {
			id = row.AlertName + "|" + row.Source
		}

		k := key{dc: row.DC, id: id}
		acc := accums[k]
		if acc == nil {
			acc = &detailAccum{first: row, states: make(map[string]struct{}), minTS: row.TS, maxTS: row.TS}
			accums[k] = acc
		}
		acc.count++
		acc.states[row.State] = struct{}{}
		if row.TS.Before(acc.minTS) {
			acc.minTS = row.TS
		}
		if row.TS.After(acc.maxTS) {
			acc.maxTS = row.TS
		}
		if row.StartsAt != nil && (acc.starts == nil || row.StartsAt.Before(*acc.starts)) {
			acc.starts = row.StartsAt
		}
		if row.EndsAt != nil && (acc.ends == nil || row.EndsAt.After(*acc.ends)) {
			acc.ends = row.EndsAt
		}

		if fired[row.DC] == nil {
			fired[row.DC] = make(map[string]struct{})
			silenced[row.DC] = make(map[string]struct{})
			nameCounts[row.DC] = make(map[string]int)
		}
		if row.State == "silenced" {
			silenced[row.DC][id] = struct{}{}
		} else {
			fired[row.DC][id] = struct{}{}
		}
		nameCounts[row.DC][row.AlertName]++
	}

	for dc := range fired {
		summary := report.PerDC[dc]
		summary.DC = dc
		summary.UniqueFired = len(fired[dc])
		summary.UniqueSilenced = len(silenced[dc])
		summary.TopAlerts = topN(nameCounts[dc], e.topN)
		report.PerDC[dc] = summary
	}

	for k, acc := range accums {
		// without an explicit endsAt, stop at the last time the alert was
		// seen to avoid over-counting between polls
		start := acc.minTS
		if acc.starts != nil {
			start = *acc.starts
		}
		end := acc.maxTS
		if acc.ends != nil {
			end = *acc.ends
		}

		effStart := maxTime(start, report.StartUTC)
		effEnd := minTime(end, report.EndUTC)
		duration := int(effEnd.Sub(effStart).Seconds())
		if duration < 0 {
			duration = 0
		}

		states := make([]string, 0, len(acc.states))
		for s := range acc.states {
			states = append(states, s)
		}
		sort.Strings(states)

		report.Details[k.dc] = append(report.Details[k.dc], AlertDetail{
			AlertName:       acc.first.AlertName,
			Source:          acc.first.Source,
			Fingerprint:     acc.first.Fingerprint,
			States:          states,
			StartUTC:        effStart,
			EndUTC:          effEnd,
			DurationSeconds: duration,
			Labels:          acc.first.Labels,
			Annotations:     acc.first.Annotations,
		})
	}

	for dc := range report.Details {
		list := report.Details[dc]
		sort.Slice(list, func(i, j int) bool {
			if list[i].DurationSeconds != list[j].DurationSeconds {
				return list[i].DurationSeconds > list[j].DurationSeconds
			}
			return list[i].AlertName < list[j].AlertName
		})
		report.Details[dc] = list
	}
}

// computeGaps counts elapsed days inside the window with no snapshot data.
// Days the window covers but that have not happened yet are not gaps.
func (e *Engine) computeGaps(report *Report, counts []database.DCCount, start, end, now time.Time) {
	daysWithData := make(map[string]struct{})
	for _, row := range counts {
		daysWithData[row.TS.In(e.loc).Format("2006-01-02")] = struct{}{}
	}
	report.DaysWithData = len(daysWithData)

	effEnd := minTime(end, now)
	elapsed := 0
	for day := start.In(e.loc); day.Before(effEnd.In(e.loc)); day = day.AddDate(0, 0, 1) {
		elapsed++
	}
	if gap := elapsed - report.DaysWithData; gap > 0 {
		report.GapDays = gap
	}
}

func topN(counts map[string]int, n int) []AlertFrequency {
	out := make([]AlertFrequency, 0, len(counts))
	for name, count := range counts {
		out = append(out, AlertFrequency{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
