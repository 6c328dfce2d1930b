package monitoring

import (
	"errors"
	"fmt"
	"time"
)

// Core errors. Callers match them with errors.Is.
var (
	ErrUnknownSensorType    = errors.New("unknown sensor type")
	ErrInvalidStatus        = errors.New("invalid alert status")
	ErrInvalidAlertType     = errors.New("invalid alert type")
	ErrTransitionNotAllowed = errors.New("alert status transition not allowed")
	ErrInvalidThresholds    = errors.New("invalid threshold set")
)

// SensorType identifies what a charging-point sensor measures
type SensorType string

const (
	SensorCurrent     SensorType = "current"
	SensorVoltage     SensorType = "voltage"
	SensorTemperature SensorType = "temperature"
	SensorSmoke       SensorType = "smoke"
	SensorHumidity    SensorType = "humidity"
	SensorPower       SensorType = "power"
)

// SensorTypes lists every known sensor type in display order
var SensorTypes = []SensorType{
	SensorCurrent,
	SensorVoltage,
	SensorTemperature,
	SensorSmoke,
	SensorHumidity,
	SensorPower,
}

var sensorUnits = map[SensorType]string{
	SensorCurrent:     "A",
	SensorVoltage:     "V",
	SensorTemperature: "°C",
	SensorSmoke:       "ppm",
	SensorHumidity:    "%",
	SensorPower:       "W",
}

// Valid reports whether t is one of the known sensor types
func (t SensorType) Valid() bool {
	_, ok := sensorUnits[t]
	return ok
}

// Unit returns the display unit for the sensor type, or "" if unknown
func (t SensorType) Unit() string {
	return sensorUnits[t]
}

// ParseSensorType converts a raw string into a SensorType
func ParseSensorType(s string) (SensorType, error) {
	t := SensorType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSensorType, s)
	}
	return t, nil
}

// AlertType classifies what an alert is about
type AlertType string

const (
	AlertFire         AlertType = "fire"
	AlertOverheat     AlertType = "overheat"
	AlertOvercurrent  AlertType = "overcurrent"
	AlertSmoke        AlertType = "smoke"
	AlertUnauthorized AlertType = "unauthorized"
	AlertAbnormal     AlertType = "abnormal"
	AlertConnection   AlertType = "connection"
	AlertSystemError  AlertType = "system_error"
)

// AlertTypes lists every known alert type
var AlertTypes = []AlertType{
	AlertFire,
	AlertOverheat,
	AlertOvercurrent,
	AlertSmoke,
	AlertUnauthorized,
	AlertAbnormal,
	AlertConnection,
	AlertSystemError,
}

// Valid reports whether t is one of the known alert types
func (t AlertType) Valid() bool {
	for _, known := range AlertTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseAlertType converts a raw string into an AlertType
func ParseAlertType(s string) (AlertType, error) {
	t := AlertType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAlertType, s)
	}
	return t, nil
}

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

const (
	StatusNew          AlertStatus = "new"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusInProgress   AlertStatus = "in_progress"
	StatusResolved     AlertStatus = "resolved"
	StatusFalseAlarm   AlertStatus = "false"
)

// AlertStatuses lists the five known statuses in lifecycle order
var AlertStatuses = []AlertStatus{
	StatusNew,
	StatusAcknowledged,
	StatusInProgress,
	StatusResolved,
	StatusFalseAlarm,
}

// Valid reports whether s is one of the five known statuses
func (s AlertStatus) Valid() bool {
	switch s {
	case StatusNew, StatusAcknowledged, StatusInProgress, StatusResolved, StatusFalseAlarm:
		return true
	}
	return false
}

// IsActive reports whether an alert in status s still needs handling
func (s AlertStatus) IsActive() bool {
	return s == StatusNew || s == StatusAcknowledged || s == StatusInProgress
}

// ParseAlertStatus converts a raw string into an AlertStatus
func ParseAlertStatus(s string) (AlertStatus, error) {
	status := AlertStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// SensorReading is one immutable sample produced by a sensor
type SensorReading struct {
	SensorType SensorType `json:"sensor_type"`
	Value      float64    `json:"value"`
	Unit       string     `json:"unit,omitempty"`
	DeviceID   string     `json:"device_id"`
	Location   string     `json:"location,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// AlertRecord is an alert as seen by the classification core.
// Optional fields are nil when absent.
type AlertRecord struct {
	ID           uint        `json:"id"`
	AlertType    AlertType   `json:"alert_type"`
	Status       AlertStatus `json:"status"`
	Message      string      `json:"message"`
	SourceType   string      `json:"source_type"`
	SourceID     string      `json:"source_id"`
	Location     string      `json:"location,omitempty"`
	Severity     int         `json:"severity"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	ResolvedAt   *time.Time  `json:"resolved_at,omitempty"`
	HandledBy    *string     `json:"handled_by,omitempty"`
	HandlerNotes *string     `json:"handler_notes,omitempty"`
}
