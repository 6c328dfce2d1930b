package models

import (
	"time"

	"github.com/ev-monitor/backend/internal/monitoring"
)

// SensorThreshold stores the operator-tuned ThresholdSet of one sensor type
type SensorThreshold struct {
	SensorType string    `gorm:"type:varchar(50);primaryKey" json:"sensor_type"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Warning    float64   `json:"warning"`
	Critical   float64   `json:"critical"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName overrides the table name for SensorThreshold
func (SensorThreshold) TableName() string {
	return "sensor_thresholds"
}

// Set returns the stored bounds as a core ThresholdSet
func (t *SensorThreshold) Set() monitoring.ThresholdSet {
	return monitoring.ThresholdSet{Min: t.Min, Max: t.Max, Warning: t.Warning, Critical: t.Critical}
}

// ThresholdRows flattens a mapping into rows, one per sensor type
func ThresholdRows(th monitoring.Thresholds) []SensorThreshold {
	rows := make([]SensorThreshold, 0, len(th))
	for _, sensorType := range monitoring.SensorTypes {
		set, ok := th[sensorType]
		if !ok {
			continue
		}
		rows = append(rows, SensorThreshold{
			SensorType: string(sensorType),
			Min:        set.Min,
			Max:        set.Max,
			Warning:    set.Warning,
			Critical:   set.Critical,
		})
	}
	return rows
}
