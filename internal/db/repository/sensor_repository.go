package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/ev-monitor/backend/internal/db/models"
	"gorm.io/gorm"
)

// SensorQuery selects stored readings. Zero fields impose no constraint.
type SensorQuery struct {
	SensorType string
	DeviceID   string
	Start      time.Time
	End        time.Time
	Limit      int
}

// SensorRepository defines operations for stored sensor readings
type SensorRepository interface {
	Repository
	Insert(ctx context.Context, data *models.SensorData) error
	InsertBatch(ctx context.Context, data []models.SensorData) error
	Query(ctx context.Context, q SensorQuery) ([]models.SensorData, error)
	Latest(ctx context.Context, sensorType string) (*models.SensorData, error)
	Average(ctx context.Context, sensorType, deviceID string, since time.Time) (float64, error)
}

// sensorRepository implements SensorRepository
type sensorRepository struct {
	BaseRepository
}

// NewSensorRepository creates a new sensor data repository
func NewSensorRepository(db *gorm.DB) SensorRepository {
	return &sensorRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Insert stores a single reading
func (r *sensorRepository) Insert(ctx context.Context, data *models.SensorData) error {
	if data.SensorType == "" {
		return ErrInvalidInput
	}
	err := r.conn(ctx).Create(data).Error
	return r.handleError(err)
}

// InsertBatch stores readings atomically
func (r *sensorRepository) InsertBatch(ctx context.Context, data []models.SensorData) error {
	if len(data) == 0 {
		return nil
	}

	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(data, 100).Error
	})
	return r.handleError(err)
}

// Query returns the matching readings, newest first
func (r *sensorRepository) Query(ctx context.Context, q SensorQuery) ([]models.SensorData, error) {
	var data []models.SensorData

	query := r.conn(ctx)
	if q.SensorType != "" {
		query = query.Where("sensor_type = ?", q.SensorType)
	}
	if q.DeviceID != "" {
		query = query.Where("device_id = ?", q.DeviceID)
	}
	if !q.Start.IsZero() {
		query = query.Where("timestamp >= ?", q.Start)
	}
	if !q.End.IsZero() {
		query = query.Where("timestamp <= ?", q.End)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	err := query.Order("timestamp desc, id desc").Find(&data).Error
	if err != nil {
		return nil, r.handleError(err)
	}

	return data, nil
}

// Latest returns the most recent reading of a sensor type
func (r *sensorRepository) Latest(ctx context.Context, sensorType string) (*models.SensorData, error) {
	var data models.SensorData
	err := r.conn(ctx).Where("sensor_type = ?", sensorType).
		Order("timestamp desc, id desc").
		First(&data).Error

	if err != nil {
		return nil, r.handleError(err)
	}

	return &data, nil
}

// Average returns the mean value of a sensor type since the given instant,
// optionally for one device. It is zero when nothing matches.
func (r *sensorRepository) Average(ctx context.Context, sensorType, deviceID string, since time.Time) (float64, error) {
	var avg sql.NullFloat64

	query := r.conn(ctx).Model(&models.SensorData{}).
		Select("AVG(value)").
		Where("sensor_type = ? AND timestamp >= ?", sensorType, since)
	if deviceID != "" {
		query = query.Where("device_id = ?", deviceID)
	}

	if err := query.Row().Scan(&avg); err != nil {
		return 0, r.handleError(err)
	}
	return avg.Float64, nil
}
