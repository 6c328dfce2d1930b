package models

import (
	"time"

	"github.com/ev-monitor/backend/internal/monitoring"
)

// SensorData is one stored sensor reading together with the band it was
// classified into when recorded
type SensorData struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	SensorType string    `gorm:"type:varchar(50);not null;index:idx_sensor_type_time,priority:1" json:"sensor_type"`
	Value      float64   `gorm:"not null" json:"value"`
	Unit       string    `gorm:"type:varchar(20)" json:"unit"`
	DeviceID   string    `gorm:"type:varchar(100);index" json:"device_id"`
	Location   string    `gorm:"type:varchar(255)" json:"location,omitempty"`
	Band       string    `gorm:"type:varchar(20)" json:"band"`
	Timestamp  time.Time `gorm:"not null;index:idx_sensor_type_time,priority:2" json:"timestamp"`
}

// TableName overrides the table name for SensorData
func (SensorData) TableName() string {
	return "sensor_data"
}

// NewSensorData builds a row from a reading and its band
func NewSensorData(r monitoring.SensorReading, band monitoring.Band) *SensorData {
	return &SensorData{
		SensorType: string(r.SensorType),
		Value:      r.Value,
		Unit:       r.Unit,
		DeviceID:   r.DeviceID,
		Location:   r.Location,
		Band:       string(band),
		Timestamp:  r.Timestamp,
	}
}

// ToReading converts the row back into a core reading
func (s *SensorData) ToReading() monitoring.SensorReading {
	return monitoring.SensorReading{
		SensorType: monitoring.SensorType(s.SensorType),
		Value:      s.Value,
		Unit:       s.Unit,
		DeviceID:   s.DeviceID,
		Location:   s.Location,
		Timestamp:  s.Timestamp,
	}
}
