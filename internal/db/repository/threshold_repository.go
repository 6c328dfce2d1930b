package repository

import (
	"context"

	"github.com/ev-monitor/backend/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ThresholdRepository stores operator-tuned thresholds
type ThresholdRepository interface {
	Repository
	List(ctx context.Context) ([]models.SensorThreshold, error)
	Upsert(ctx context.Context, rows []models.SensorThreshold) error
}

// thresholdRepository implements ThresholdRepository
type thresholdRepository struct {
	BaseRepository
}

// NewThresholdRepository creates a new threshold repository
func NewThresholdRepository(db *gorm.DB) ThresholdRepository {
	return &thresholdRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// List returns every stored threshold row
func (r *thresholdRepository) List(ctx context.Context) ([]models.SensorThreshold, error) {
	var rows []models.SensorThreshold
	err := r.conn(ctx).Order("sensor_type asc").Find(&rows).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return rows, nil
}

// Upsert inserts or replaces the rows in one transaction
func (r *thresholdRepository) Upsert(ctx context.Context, rows []models.SensorThreshold) error {
	if len(rows) == 0 {
		return nil
	}

	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sensor_type"}},
			UpdateAll: true,
		}).Create(&rows).Error
	})
	return r.handleError(err)
}
