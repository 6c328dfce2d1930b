package repository

import (
	"sync"

	"gorm.io/gorm"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db            *gorm.DB
	mu            sync.Mutex
	alertRepo     AlertRepository
	sensorRepo    SensorRepository
	thresholdRepo ThresholdRepository
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(db *gorm.DB) *RepositoryFactory {
	return &RepositoryFactory{
		db: db,
	}
}

// Alert returns the alert repository
func (f *RepositoryFactory) Alert() AlertRepository {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.alertRepo == nil {
		f.alertRepo = NewAlertRepository(f.db)
	}
	return f.alertRepo
}

// Sensor returns the sensor data repository
func (f *RepositoryFactory) Sensor() SensorRepository {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sensorRepo == nil {
		f.sensorRepo = NewSensorRepository(f.db)
	}
	return f.sensorRepo
}

// Threshold returns the threshold repository
func (f *RepositoryFactory) Threshold() ThresholdRepository {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.thresholdRepo == nil {
		f.thresholdRepo = NewThresholdRepository(f.db)
	}
	return f.thresholdRepo
}
