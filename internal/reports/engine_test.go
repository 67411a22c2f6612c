package reports

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/dcwatch/dcwatch/internal/database"
	"github.com/dcwatch/dcwatch/internal/testhelpers"
)

func newTestEngine(t *testing.T) (*Engine, *gorm.DB) {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	engine, err := NewEngine(database.NewSnapshotStore(db), "UTC", 3)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	return engine, db
}

func seedCount(t *testing.T, db *gorm.DB, ts time.Time, dc string, active, silenced int) {
	t.Helper()
	row := database.DCCount{
		CycleID:  "cycle",
		TS:       ts,
		DC:       dc,
		Active:   active,
		Silenced: silenced,
		Total:    active + silenced,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("failed to seed count row: %v", err)
	}
}

func seedSnapshot(t *testing.T, db *gorm.DB, ts time.Time, dc, name, fingerprint, state string) {
	t.Helper()
	row := database.AlertSnapshot{
		CycleID:     "cycle",
		TS:          ts,
		DC:          dc,
		AlertName:   name,
		Severity:    "warning",
		State:       state,
		Fingerprint: fingerprint,
		Source:      "am-" + dc,
		Labels:      database.LabelMap{"alertname": name},
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("failed to seed snapshot row: %v", err)
	}
}

func TestDailyReportAveragesAndRatio(t *testing.T) {
	engine, db := newTestEngine(t)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// three cycles in one day: totals 4, 6, 8 with 2 silenced each
	for i, active := range []int{2, 4, 6} {
		seedCount(t, db, day.Add(time.Duration(i)*time.Hour), "fra", active, 2)
	}

	report, err := engine.Daily(day)
	if err != nil {
		t.Fatalf("Daily() error: %v", err)
	}

	fra, ok := report.PerDC["fra"]
	if !ok {
		t.Fatal("expected fra summary")
	}
	if fra.AlertCountAvg != 6.0 {
		t.Errorf("expected mean total 6.0, got %v", fra.AlertCountAvg)
	}
	if fra.AlertCountMax != 8 {
		t.Errorf("expected max 8, got %d", fra.AlertCountMax)
	}
	// 6 silenced out of 18 observed
	if fra.SilencedRatio < 0.33 || fra.SilencedRatio > 0.34 {
		t.Errorf("expected silenced ratio ~1/3, got %v", fra.SilencedRatio)
	}
	if fra.Samples != 3 {
		t.Errorf("expected 3 samples, got %d", fra.Samples)
	}
	if report.DaysWithData != 1 || report.GapDays != 0 {
		t.Errorf("unexpected coverage: days=%d gaps=%d", report.DaysWithData, report.GapDays)
	}
}

func TestMonthlyReportGapHandling(t *testing.T) {
	engine, db := newTestEngine(t)

	// April 2026 has 30 days; seed data for 27 of them
	monthStart := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for day := 0; day < 30; day++ {
		if day == 4 || day == 12 || day == 20 {
			continue
		}
		seedCount(t, db, monthStart.AddDate(0, 0, day).Add(12*time.Hour), "fra", 5, 0)
	}

	now := time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)
	report, err := engine.buildAt("monthly", monthStart, monthStart.AddDate(0, 1, 0), now)
	if err != nil {
		t.Fatalf("buildAt() error: %v", err)
	}

	if report.DaysWithData != 27 {
		t.Errorf("expected 27 days with data, got %d", report.DaysWithData)
	}
	if report.GapDays != 3 {
		t.Errorf("expected 3 gap days, got %d", report.GapDays)
	}
	// averaging happens over observed days only, not the full window
	if avg := report.PerDC["fra"].AlertCountAvg; avg != 5.0 {
		t.Errorf("expected average over observed days 5.0, got %v", avg)
	}
}

func TestReportFutureDaysAreNotGaps(t *testing.T) {
	engine, db := newTestEngine(t)

	monthStart := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for day := 0; day < 10; day++ {
		seedCount(t, db, monthStart.AddDate(0, 0, day).Add(12*time.Hour), "fra", 1, 0)
	}

	// mid-month: 10 elapsed days all covered, the rest has not happened yet
	now := monthStart.AddDate(0, 0, 10)
	report, err := engine.buildAt("monthly", monthStart, monthStart.AddDate(0, 1, 0), now)
	if err != nil {
		t.Fatalf("buildAt() error: %v", err)
	}

	if report.GapDays != 0 {
		t.Errorf("expected no gaps mid-month, got %d", report.GapDays)
	}
	if report.DaysWithData != 10 {
		t.Errorf("expected 10 days with data, got %d", report.DaysWithData)
	}
}

func TestWeeklyReportWindow(t *testing.T) {
	engine, db := newTestEngine(t)
	endDay := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	seedCount(t, db, endDay.Add(-8*24*time.Hour), "fra", 9, 0) // outside window
	seedCount(t, db, endDay.Add(-24*time.Hour), "fra", 3, 0)   // inside

	report, err := engine.Weekly(endDay)
	if err != nil {
		t.Fatalf("Weekly() error: %v", err)
	}

	fra := report.PerDC["fra"]
	if fra.Samples != 1 {
		t.Errorf("expected only the in-window sample, got %d", fra.Samples)
	}
	if fra.AlertCountMax != 3 {
		t.Errorf("expected max 3 from in-window data, got %d", fra.AlertCountMax)
	}
}

func TestReportDetailsAndTopAlerts(t *testing.T) {
	engine, db := newTestEngine(t)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	// HighCPU observed over 3 polls (longest), DiskFull over 1
	for i := 0; i < 3; i++ {
		seedSnapshot(t, db, day.Add(time.Duration(i)*time.Hour), "fra", "HighCPU", "fp-cpu", "active")
	}
	seedSnapshot(t, db, day.Add(time.Hour), "fra", "DiskFull", "fp-disk", "silenced")

	report, err := engine.Daily(day)
	if err != nil {
		t.Fatalf("Daily() error: %v", err)
	}

	fra := report.PerDC["fra"]
	if fra.UniqueFired != 1 || fra.UniqueSilenced != 1 {
		t.Errorf("unexpected unique counts: fired=%d silenced=%d", fra.UniqueFired, fra.UniqueSilenced)
	}
	if len(fra.TopAlerts) != 2 || fra.TopAlerts[0].Name != "HighCPU" || fra.TopAlerts[0].Count != 3 {
		t.Errorf("unexpected top alerts %+v", fra.TopAlerts)
	}

	details := report.Details["fra"]
	if len(details) != 2 {
		t.Fatalf("expected 2 detail entries, got %d", len(details))
	}
	// sorted by duration descending
	if details[0].AlertName != "HighCPU" {
		t.Errorf("expected HighCPU first, got %s", details[0].AlertName)
	}
	if details[0].DurationSeconds != 2*3600 {
		t.Errorf("expected duration spanning first to last observation, got %d", details[0].DurationSeconds)
	}
	if details[1].DurationSeconds != 0 {
		t.Errorf("expected zero duration for single observation, got %d", details[1].DurationSeconds)
	}
}

func TestNewEngineRejectsBadTimezone(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	if _, err := NewEngine(database.NewSnapshotStore(db), "Not/AZone", 10); err == nil {
		t.Error("expected error for invalid timezone")
	}
}
