package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/dcwatch/dcwatch/internal/aggregator"
)

// writeAttempts bounds snapshot write retries. A cycle whose snapshot cannot
// be written after these attempts is logged and dropped; ingestion is never
// stalled by storage backpressure.
const writeAttempts = 3

// minRetentionDays keeps enough history to answer the smallest supported
// report granularity (daily) even under an aggressive retention setting.
const minRetentionDays = 2

// SnapshotStore persists the aggregated view of each poll cycle as an
// append-only record set.
type SnapshotStore struct {
	db         *gorm.DB
	retryDelay time.Duration
}

// NewSnapshotStore creates a snapshot store on the given database
func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db, retryDelay: 2 * time.Second}
}

// Record writes one DCCount row per DC and one AlertSnapshot row per alert
// for the given view, in a single transaction. Writes are retried a bounded
// number of times before the cycle's snapshot is dropped.
func (s *SnapshotStore) Record(view *aggregator.AggregateView) error {
	var lastErr error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		if err := s.writeOnce(view); err != nil {
			lastErr = err
			log.Printf("Snapshot write attempt %d/%d failed: %v", attempt, writeAttempts, err)
			if attempt < writeAttempts {
				time.Sleep(s.retryDelay)
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("snapshot for cycle %s dropped after %d attempts: %w", view.CycleID, writeAttempts, lastErr)
}

func (s *SnapshotStore) writeOnce(view *aggregator.AggregateView) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for dc, counts := range view.Counts {
			row := DCCount{
				CycleID:  view.CycleID,
				TS:       view.GeneratedAt,
				DC:       dc,
				Active:   counts.Active,
				Silenced: counts.Silenced,
				Total:    counts.Total,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for dc, list := range view.ByDC {
			for _, a := range list {
				row := AlertSnapshot{
					CycleID:     view.CycleID,
					TS:          view.GeneratedAt,
					DC:          dc,
					AlertName:   a.Name,
					Severity:    a.Severity,
					State:       string(a.State),
					Fingerprint: a.ID,
					Source:      a.SourceID,
					Stale:       a.Stale,
					Labels:      LabelMap(a.Labels),
					Annotations: LabelMap(a.Annotations),
				}
				if !a.StartsAt.IsZero() {
					starts := a.StartsAt
					row.StartsAt = &starts
				}
				row.EndsAt = a.EndsAt
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// SnapshotsInRange returns all alert snapshots with TS in [start, end)
func (s *SnapshotStore) SnapshotsInRange(start, end time.Time) ([]AlertSnapshot, error) {
	var rows []AlertSnapshot
	err := s.db.Where("ts >= ? AND ts < ?", start, end).Order("ts ASC").Find(&rows).Error
	return rows, err
}

// CountsInRange returns all per-DC count rows with TS in [start, end)
func (s *SnapshotStore) CountsInRange(start, end time.Time) ([]DCCount, error) {
	var rows []DCCount
	err := s.db.Where("ts >= ? AND ts < ?", start, end).Order("ts ASC").Find(&rows).Error
	return rows, err
}

// Prune removes snapshot history older than the retention window. The window
// is clamped to a floor so pruning can never remove the data a daily report
// needs. Returns the number of deleted rows.
func (s *SnapshotStore) Prune(retentionDays int, now time.Time) (int64, error) {
	if retentionDays < minRetentionDays {
		retentionDays = minRetentionDays
	}
	cutoff := now.AddDate(0, 0, -retentionDays)

	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("ts < ?", cutoff).Delete(&AlertSnapshot{})
		if res.Error != nil {
			return res.Error
		}
		deleted += res.RowsAffected

		res = tx.Where("ts < ?", cutoff).Delete(&DCCount{})
		if res.Error != nil {
			return res.Error
		}
		deleted += res.RowsAffected
		return nil
	})
	return deleted, err
}
