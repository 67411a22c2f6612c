package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// LabelMap stores a string-to-string label set as a JSON column. It works on
// both the postgres jsonb type and sqlite's dynamic typing.
type LabelMap map[string]string

// Scan implements the sql.Scanner interface
func (m *LabelMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(map[string]string)
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("type assertion to []byte failed")
	}
}

// Value implements the driver.Valuer interface
func (m LabelMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// DCCount is the per-DC count row written once per poll cycle. Rows are
// append-only; nothing updates or deletes them except retention pruning.
type DCCount struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	CycleID  string    `gorm:"size:36;index;not null" json:"cycle_id"`
	TS       time.Time `gorm:"index;not null" json:"ts"`
	DC       string    `gorm:"size:128;index;not null" json:"dc"`
	Active   int       `gorm:"not null" json:"active"`
	Silenced int       `gorm:"not null" json:"silenced"`
	Total    int       `gorm:"not null" json:"total"`
}

func (DCCount) TableName() string {
	return "dc_counts"
}

// AlertSnapshot is one alert as observed in one poll cycle. The fingerprint
// ties successive snapshots of the same underlying condition together for
// reporting.
type AlertSnapshot struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	CycleID     string     `gorm:"size:36;index;not null" json:"cycle_id"`
	TS          time.Time  `gorm:"index;not null" json:"ts"`
	DC          string     `gorm:"size:128;index;not null" json:"dc"`
	AlertName   string     `gorm:"size:255;index" json:"alert_name"`
	Severity    string     `gorm:"size:32" json:"severity"`
	State       string     `gorm:"size:16" json:"state"` // active|silenced
	Fingerprint string     `gorm:"size:64;index" json:"fingerprint"`
	Source      string     `gorm:"size:128" json:"source"`
	Stale       bool       `gorm:"default:false" json:"stale"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	Labels      LabelMap   `gorm:"type:jsonb" json:"labels"`
	Annotations LabelMap   `gorm:"type:jsonb" json:"annotations"`
}

func (AlertSnapshot) TableName() string {
	return "alert_snapshots"
}
