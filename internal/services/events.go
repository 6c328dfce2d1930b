package services

import (
	"time"

	"github.com/ev-monitor/backend/internal/monitoring"
	"github.com/google/uuid"
)

// AlertAction names what happened to an alert
type AlertAction string

const (
	AlertCreated       AlertAction = "created"
	AlertUpdated       AlertAction = "updated"
	AlertStatusChanged AlertAction = "status_changed"
	AlertDeleted       AlertAction = "deleted"
)

// AlertEvent is published whenever the alert collection changes.
// CountsDelta can be merged into a running AlertStatusCounts.
type AlertEvent struct {
	EventID     string                 `json:"event_id"`
	Action      AlertAction            `json:"action"`
	Alert       monitoring.AlertRecord `json:"alert"`
	CountsDelta monitoring.CountsDelta `json:"counts_delta"`
	Timestamp   time.Time              `json:"timestamp"`
}

// AlertListener receives alert events after they have been persisted
type AlertListener interface {
	OnAlertEvent(event AlertEvent)
}

func newAlertEvent(action AlertAction, record monitoring.AlertRecord, delta monitoring.CountsDelta, now time.Time) AlertEvent {
	if delta == nil {
		delta = monitoring.CountsDelta{}
	}
	return AlertEvent{
		EventID:     uuid.NewString(),
		Action:      action,
		Alert:       record,
		CountsDelta: delta,
		Timestamp:   now,
	}
}
