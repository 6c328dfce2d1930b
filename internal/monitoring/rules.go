package monitoring

import (
	"fmt"
	"strconv"
)

// AlertDraft is an alert that a reading should raise, before persistence
type AlertDraft struct {
	AlertType  AlertType
	Message    string
	SourceType string
	SourceID   string
	Location   string
	Severity   int
	Details    map[string]any
}

type sensorRule struct {
	alertType        AlertType
	format           string
	lowFormat        string
	warningSeverity  int
	criticalSeverity int
}

// humidity and power are displayed but never raise alerts
var sensorRules = map[SensorType]sensorRule{
	SensorCurrent:     {AlertOvercurrent, "Abnormal current: %s%s", "Abnormal current: %s%s", 3, 4},
	SensorVoltage:     {AlertSystemError, "Abnormal voltage: %s%s", "Abnormal voltage: %s%s", 3, 4},
	SensorTemperature: {AlertOverheat, "Temperature too high: %s%s", "Temperature too low: %s%s", 4, 5},
	SensorSmoke:       {AlertSmoke, "Smoke detected: %s%s", "Smoke sensor below range: %s%s", 4, 5},
}

// LevelBelowMin is the alert level of a reading under its sensor's Min.
// The reading still classifies by Warning and Critical alone.
const LevelBelowMin = "below_min"

// RuleFor returns the alert a reading in band should raise, if any.
// Warning and critical readings raise at their band's severity; a normal
// reading below set.Min raises at warning severity with level below_min.
func RuleFor(reading SensorReading, band Band, set ThresholdSet) (AlertDraft, bool) {
	rule, ok := sensorRules[reading.SensorType]
	if !ok {
		return AlertDraft{}, false
	}

	level := string(band)
	format := rule.format
	severity := rule.warningSeverity
	switch {
	case band == BandCritical:
		severity = rule.criticalSeverity
	case band == BandWarning:
	case reading.Value < set.Min:
		level = LevelBelowMin
		format = rule.lowFormat
	default:
		return AlertDraft{}, false
	}

	unit := reading.Unit
	if unit == "" {
		unit = reading.SensorType.Unit()
	}

	return AlertDraft{
		AlertType:  rule.alertType,
		Message:    fmt.Sprintf(format, strconv.FormatFloat(reading.Value, 'f', -1, 64), unit),
		SourceType: "sensor",
		SourceID:   "sensor_" + string(reading.SensorType),
		Location:   reading.Location,
		Severity:   severity,
		Details: map[string]any{
			"sensor_type": reading.SensorType,
			"device_id":   reading.DeviceID,
			"value":       reading.Value,
			"level":       level,
			"threshold":   set,
		},
	}, true
}
