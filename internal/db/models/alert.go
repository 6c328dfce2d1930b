package models

import (
	"time"

	"github.com/ev-monitor/backend/internal/monitoring"
)

// Alert is a persisted safety alert. Timestamps are owned by the service
// layer, so gorm's automatic time tracking is disabled.
type Alert struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	AlertType    string     `gorm:"type:varchar(50);not null;index" json:"alert_type"`
	Status       string     `gorm:"type:varchar(20);not null;default:new;index" json:"status"`
	Message      string     `gorm:"type:text;not null" json:"message"`
	SourceType   string     `gorm:"type:varchar(50)" json:"source_type"`
	SourceID     string     `gorm:"type:varchar(100)" json:"source_id"`
	Location     string     `gorm:"type:varchar(255)" json:"location,omitempty"`
	Severity     int        `gorm:"not null;default:1" json:"severity"`
	Details      JSON       `json:"details,omitempty"`
	CreatedAt    time.Time  `gorm:"index;autoCreateTime:false" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	HandledBy    *string    `gorm:"type:varchar(100)" json:"handled_by,omitempty"`
	HandlerNotes *string    `gorm:"type:text" json:"handler_notes,omitempty"`
}

// TableName overrides the table name for Alert
func (Alert) TableName() string {
	return "alerts"
}

// ToRecord converts the row into the classification core's view
func (a *Alert) ToRecord() monitoring.AlertRecord {
	return monitoring.AlertRecord{
		ID:           a.ID,
		AlertType:    monitoring.AlertType(a.AlertType),
		Status:       monitoring.AlertStatus(a.Status),
		Message:      a.Message,
		SourceType:   a.SourceType,
		SourceID:     a.SourceID,
		Location:     a.Location,
		Severity:     a.Severity,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
		ResolvedAt:   a.ResolvedAt,
		HandledBy:    a.HandledBy,
		HandlerNotes: a.HandlerNotes,
	}
}

// ApplyRecord copies the mutable lifecycle fields of r onto the row
func (a *Alert) ApplyRecord(r monitoring.AlertRecord) {
	a.Status = string(r.Status)
	a.UpdatedAt = r.UpdatedAt
	a.ResolvedAt = r.ResolvedAt
	a.HandledBy = r.HandledBy
	a.HandlerNotes = r.HandlerNotes
}

// AlertRecords converts rows to core records, keeping their order
func AlertRecords(alerts []Alert) []monitoring.AlertRecord {
	records := make([]monitoring.AlertRecord, len(alerts))
	for i := range alerts {
		records[i] = alerts[i].ToRecord()
	}
	return records
}
