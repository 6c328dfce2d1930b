package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ev-monitor/backend/internal/config"
	"github.com/ev-monitor/backend/internal/db/models"
	"github.com/ev-monitor/backend/internal/db/repository"
	"github.com/ev-monitor/backend/internal/monitoring"
	"github.com/ev-monitor/backend/internal/utils"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	defaultSeverity  = 3
	defaultStatsDays = 7
)

// AlertNotifier delivers a newly created alert to operators
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, alert *models.Alert)
}

// StatusUpdate is a requested alert transition. An empty Status keeps the
// current one and only the handler fields change.
type StatusUpdate struct {
	Status       string
	HandledBy    *string
	HandlerNotes *string
}

// AlertStats is the dashboard view of the alert collection
type AlertStats struct {
	Counts   monitoring.AlertStatusCounts   `json:"counts"`
	ByType   map[monitoring.AlertType]int   `json:"by_type"`
	ByStatus map[monitoring.AlertStatus]int `json:"by_status"`
	ByDate   map[string]int                 `json:"by_date"`
}

// AlertService handles the alert lifecycle
type AlertService struct {
	logger    *utils.Logger
	alertRepo repository.AlertRepository
	notifier  AlertNotifier
	listeners []AlertListener
	policy    monitoring.Policy
	now       func() time.Time
}

// NewAlertService creates a new alert service. notifier may be nil.
func NewAlertService(
	repoFactory *repository.RepositoryFactory,
	cfg *config.AlertsConfig,
	notifier AlertNotifier,
	logger *utils.Logger,
) *AlertService {
	return &AlertService{
		logger:    logger.Named("alert_service"),
		alertRepo: repoFactory.Alert(),
		notifier:  notifier,
		policy:    cfg.Policy(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AddListener registers l for every alert event. Not safe to call once
// the service is handling requests.
func (s *AlertService) AddListener(l AlertListener) {
	s.listeners = append(s.listeners, l)
}

// Policy returns the transition policy in effect
func (s *AlertService) Policy() monitoring.Policy {
	return s.policy
}

// Create persists a new alert in status new and notifies operators
func (s *AlertService) Create(ctx context.Context, draft monitoring.AlertDraft) (*models.Alert, error) {
	if !draft.AlertType.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", utils.ErrValidation, monitoring.ErrInvalidAlertType, draft.AlertType)
	}
	if strings.TrimSpace(draft.Message) == "" {
		return nil, fmt.Errorf("%w: alert message is required", utils.ErrValidation)
	}

	severity := draft.Severity
	if severity == 0 {
		severity = defaultSeverity
	}
	if severity < 1 || severity > 5 {
		return nil, fmt.Errorf("%w: severity must be between 1 and 5, got %d", utils.ErrValidation, severity)
	}

	var details models.JSON
	if len(draft.Details) > 0 {
		encoded, err := models.NewJSON(draft.Details)
		if err != nil {
			return nil, fmt.Errorf("%w: alert details: %v", utils.ErrValidation, err)
		}
		details = encoded
	}

	now := s.now()
	alert := &models.Alert{
		AlertType:  string(draft.AlertType),
		Status:     string(monitoring.StatusNew),
		Message:    draft.Message,
		SourceType: draft.SourceType,
		SourceID:   draft.SourceID,
		Location:   draft.Location,
		Severity:   severity,
		Details:    details,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.alertRepo.Create(ctx, alert); err != nil {
		s.logger.Error("Failed to create alert", zap.String("alert_type", alert.AlertType), zap.Error(err))
		return nil, s.mapRepoError(err, 0)
	}

	s.logger.Info("Alert created",
		zap.Uint("alert_id", alert.ID),
		zap.String("alert_type", alert.AlertType),
		zap.Int("severity", alert.Severity),
		zap.String("message", alert.Message))

	if s.notifier != nil {
		s.notifier.NotifyAlert(ctx, alert)
	}
	s.emit(AlertCreated, alert.ToRecord(), monitoring.CountsDelta{monitoring.StatusNew: 1})

	return alert, nil
}

// Get retrieves one alert
func (s *AlertService) Get(ctx context.Context, id uint) (*models.Alert, error) {
	alert, err := s.alertRepo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(err, id)
	}
	return alert, nil
}

// List returns the alerts matching criteria, newest first, one page at a time
func (s *AlertService) List(ctx context.Context, criteria monitoring.Criteria, page utils.PaginationRequest) (utils.PaginatedResponse[models.Alert], error) {
	alerts, err := s.alertRepo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list alerts", zap.Error(err))
		return utils.PaginatedResponse[models.Alert]{}, s.mapRepoError(err, 0)
	}

	if !criteria.IsEmpty() {
		alerts = lo.Filter(alerts, func(a models.Alert, _ int) bool {
			return criteria.Matches(a.ToRecord())
		})
	}

	return utils.Paginate(alerts, page), nil
}

// Active returns the alerts that still need handling, newest first
func (s *AlertService) Active(ctx context.Context) ([]models.Alert, error) {
	statuses := lo.FilterMap(monitoring.AlertStatuses, func(st monitoring.AlertStatus, _ int) (string, bool) {
		return string(st), st.IsActive()
	})

	alerts, err := s.alertRepo.ListByStatus(ctx, statuses...)
	if err != nil {
		return nil, s.mapRepoError(err, 0)
	}
	return alerts, nil
}

// maxUpdateAttempts bounds re-reads when concurrent writers race on one alert
const maxUpdateAttempts = 5

// UpdateStatus applies a transition under the configured policy and
// returns the updated alert with the counts delta it caused. The write is
// conditional on the status the transition was computed from, so racing
// updates are re-evaluated against the winner's result.
func (s *AlertService) UpdateStatus(ctx context.Context, id uint, update StatusUpdate) (*models.Alert, monitoring.CountsDelta, error) {
	for attempt := 1; ; attempt++ {
		alert, current, result, err := s.transition(ctx, id, update)
		if err != nil {
			return nil, nil, err
		}

		err = s.alertRepo.Update(ctx, alert, string(current.Status))
		if errors.Is(err, repository.ErrStale) {
			if attempt < maxUpdateAttempts {
				s.logger.Debug("Alert changed concurrently, retrying", zap.Uint("alert_id", id), zap.Int("attempt", attempt))
				continue
			}
			return nil, nil, utils.NewErrorWithCode(
				fmt.Errorf("%w: alert %d is being updated concurrently", utils.ErrConflict, id), "concurrent_update")
		}
		if err != nil {
			s.logger.Error("Failed to update alert", zap.Uint("alert_id", id), zap.Error(err))
			return nil, nil, s.mapRepoError(err, id)
		}

		action := AlertUpdated
		if current.Status != result.Record.Status {
			action = AlertStatusChanged
			s.logger.Info("Alert status changed",
				zap.Uint("alert_id", id),
				zap.String("from", string(current.Status)),
				zap.String("to", string(result.Record.Status)))
		}
		s.emit(action, result.Record, result.Delta)

		return alert, result.Delta, nil
	}
}

// transition loads the alert and computes the update without persisting it
func (s *AlertService) transition(ctx context.Context, id uint, update StatusUpdate) (*models.Alert, monitoring.AlertRecord, monitoring.TransitionResult, error) {
	alert, err := s.alertRepo.GetByID(ctx, id)
	if err != nil {
		return nil, monitoring.AlertRecord{}, monitoring.TransitionResult{}, s.mapRepoError(err, id)
	}

	current := alert.ToRecord()
	status := monitoring.AlertStatus(update.Status)
	if update.Status == "" {
		status = current.Status
	}

	result, err := monitoring.Transition(current, monitoring.TransitionRequest{
		Status:    status,
		HandledBy: update.HandledBy,
		Notes:     update.HandlerNotes,
	}, s.policy, s.now())
	if err != nil {
		switch {
		case errors.Is(err, monitoring.ErrTransitionNotAllowed):
			err = utils.NewErrorWithCode(fmt.Errorf("%w: %w", utils.ErrConflict, err), "transition_not_allowed")
		case errors.Is(err, monitoring.ErrInvalidStatus):
			err = fmt.Errorf("%w: %w", utils.ErrValidation, err)
		}
		return nil, current, monitoring.TransitionResult{}, err
	}

	alert.ApplyRecord(result.Record)
	return alert, current, result, nil
}

// Delete removes an alert
func (s *AlertService) Delete(ctx context.Context, id uint) error {
	alert, err := s.alertRepo.GetByID(ctx, id)
	if err != nil {
		return s.mapRepoError(err, id)
	}

	if err := s.alertRepo.Delete(ctx, id); err != nil {
		return s.mapRepoError(err, id)
	}

	s.logger.Info("Alert deleted", zap.Uint("alert_id", id))

	record := alert.ToRecord()
	s.emit(AlertDeleted, record, monitoring.CountsDelta{record.Status: -1})
	return nil
}

// Stats aggregates the whole collection. ByDate is limited to the last
// days dates that have alerts; days <= 0 means a week.
func (s *AlertService) Stats(ctx context.Context, days int) (*AlertStats, error) {
	if days <= 0 {
		days = defaultStatsDays
	}

	alerts, err := s.alertRepo.List(ctx)
	if err != nil {
		return nil, s.mapRepoError(err, 0)
	}

	records := models.AlertRecords(alerts)
	return &AlertStats{
		Counts:   monitoring.Aggregate(records),
		ByType:   monitoring.CountByType(records),
		ByStatus: monitoring.CountByStatus(records),
		ByDate:   monitoring.CountByDay(records, days, time.UTC),
	}, nil
}

func (s *AlertService) emit(action AlertAction, record monitoring.AlertRecord, delta monitoring.CountsDelta) {
	if len(s.listeners) == 0 {
		return
	}

	event := newAlertEvent(action, record, delta, s.now())
	for _, l := range s.listeners {
		l.OnAlertEvent(event)
	}
}

// mapRepoError converts repository errors into API errors
func (s *AlertService) mapRepoError(err error, id uint) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("alert %d: %w", id, utils.ErrNotFound)
	case errors.Is(err, repository.ErrInvalidInput):
		return fmt.Errorf("%w: %v", utils.ErrValidation, err)
	default:
		return fmt.Errorf("%w: %v", utils.ErrInternalServer, err)
	}
}
