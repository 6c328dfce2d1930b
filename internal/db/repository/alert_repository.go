package repository

import (
	"context"

	"github.com/ev-monitor/backend/internal/db/models"
	"gorm.io/gorm"
)

// AlertRepository defines operations for managing alerts
type AlertRepository interface {
	Repository
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id uint) (*models.Alert, error)
	List(ctx context.Context) ([]models.Alert, error)
	ListByStatus(ctx context.Context, statuses ...string) ([]models.Alert, error)
	Update(ctx context.Context, alert *models.Alert, expectedStatus string) error
	Delete(ctx context.Context, id uint) error
}

// alertRepository implements AlertRepository
type alertRepository struct {
	BaseRepository
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const alertOrder = "created_at desc, id desc"

// Create adds a new alert to the database
func (r *alertRepository) Create(ctx context.Context, alert *models.Alert) error {
	if alert.AlertType == "" || alert.Message == "" {
		return ErrInvalidInput
	}
	err := r.conn(ctx).Create(alert).Error
	return r.handleError(err)
}

// GetByID retrieves an alert by ID
func (r *alertRepository) GetByID(ctx context.Context, id uint) (*models.Alert, error) {
	var alert models.Alert
	err := r.conn(ctx).Where("id = ?", id).First(&alert).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return &alert, nil
}

// List retrieves every alert, newest first
func (r *alertRepository) List(ctx context.Context) ([]models.Alert, error) {
	var alerts []models.Alert
	err := r.conn(ctx).Order(alertOrder).Find(&alerts).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return alerts, nil
}

// ListByStatus retrieves the alerts in any of the given statuses, newest first
func (r *alertRepository) ListByStatus(ctx context.Context, statuses ...string) ([]models.Alert, error) {
	var alerts []models.Alert
	if len(statuses) == 0 {
		return alerts, nil
	}

	err := r.conn(ctx).Where("status IN ?", statuses).Order(alertOrder).Find(&alerts).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return alerts, nil
}

// Update persists the lifecycle fields of an alert. A non-empty
// expectedStatus makes the write conditional on the stored status; when
// another writer got there first ErrStale is returned.
func (r *alertRepository) Update(ctx context.Context, alert *models.Alert, expectedStatus string) error {
	query := r.conn(ctx).Model(&models.Alert{}).Where("id = ?", alert.ID)
	if expectedStatus != "" {
		query = query.Where("status = ?", expectedStatus)
	}

	result := query.Updates(map[string]interface{}{
		"status":        alert.Status,
		"updated_at":    alert.UpdatedAt,
		"resolved_at":   alert.ResolvedAt,
		"handled_by":    alert.HandledBy,
		"handler_notes": alert.HandlerNotes,
	})
	if result.Error != nil {
		return r.handleError(result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	if expectedStatus == "" {
		return ErrNotFound
	}

	// Zero rows: either the alert is gone or its status moved on
	var count int64
	if err := r.conn(ctx).Model(&models.Alert{}).Where("id = ?", alert.ID).Count(&count).Error; err != nil {
		return r.handleError(err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStale
}

// Delete removes an alert
func (r *alertRepository) Delete(ctx context.Context, id uint) error {
	result := r.conn(ctx).Delete(&models.Alert{}, id)
	if result.Error != nil {
		return r.handleError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
