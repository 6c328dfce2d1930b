package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ev-monitor/backend/internal/cache"
	"github.com/ev-monitor/backend/internal/config"
	"github.com/ev-monitor/backend/internal/db/models"
	"github.com/ev-monitor/backend/internal/db/repository"
	"github.com/ev-monitor/backend/internal/monitoring"
	"github.com/ev-monitor/backend/internal/utils"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// AlertRaiser creates alerts for out-of-band readings
type AlertRaiser interface {
	Create(ctx context.Context, draft monitoring.AlertDraft) (*models.Alert, error)
}

// RecordResult is the outcome of recording one reading
type RecordResult struct {
	Reading monitoring.SensorReading `json:"reading"`
	Band    monitoring.Band          `json:"band"`
	AlertID *uint                    `json:"alert_id,omitempty"`
}

// HistoryQuery selects stored readings. A zero Start means the configured
// history window before now; a zero Limit means the configured limit.
type HistoryQuery struct {
	SensorType string
	DeviceID   string
	Start      time.Time
	End        time.Time
	Limit      int
}

// SensorSummary counts bands and averages values per sensor type
type SensorSummary struct {
	Since    time.Time                                       `json:"since"`
	Bands    map[monitoring.SensorType]monitoring.BandCounts `json:"bands"`
	Averages map[monitoring.SensorType]float64               `json:"averages"`
}

// SensorService records and classifies sensor readings
type SensorService struct {
	logger        *utils.Logger
	sensorRepo    repository.SensorRepository
	thresholdRepo repository.ThresholdRepository
	latest        cache.LatestStore
	alerts        AlertRaiser
	historyWindow time.Duration
	historyLimit  int
	now           func() time.Time

	mu         sync.RWMutex
	thresholds monitoring.Thresholds
}

// NewSensorService creates a sensor service. latest and alerts may be nil.
func NewSensorService(
	repoFactory *repository.RepositoryFactory,
	cfg *config.SensorsConfig,
	latest cache.LatestStore,
	alerts AlertRaiser,
	logger *utils.Logger,
) (*SensorService, error) {
	thresholds, err := cfg.ThresholdMap()
	if err != nil {
		return nil, fmt.Errorf("invalid sensor thresholds: %w", err)
	}

	return &SensorService{
		logger:        logger.Named("sensor_service"),
		sensorRepo:    repoFactory.Sensor(),
		thresholdRepo: repoFactory.Threshold(),
		latest:        latest,
		alerts:        alerts,
		historyWindow: time.Duration(cfg.HistoryWindowHours) * time.Hour,
		historyLimit:  cfg.HistoryLimit,
		now:           func() time.Time { return time.Now().UTC() },
		thresholds:    thresholds,
	}, nil
}

// LoadThresholds merges the persisted thresholds over the configured ones.
// Stored rows that are no longer valid are skipped.
func (s *SensorService) LoadThresholds(ctx context.Context) error {
	rows, err := s.thresholdRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load thresholds: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.thresholds.Clone()
	for i := range rows {
		sensorType := monitoring.SensorType(rows[i].SensorType)
		set := rows[i].Set()
		if !sensorType.Valid() || set.Validate() != nil {
			s.logger.Warn("Skipping invalid stored threshold", zap.String("sensor_type", rows[i].SensorType))
			continue
		}
		next[sensorType] = set
	}
	s.thresholds = next

	s.logger.Info("Thresholds loaded", zap.Int("stored", len(rows)))
	return nil
}

// Record validates, classifies and stores a reading, caches it as the
// latest of its type and raises an alert when its band calls for one
func (s *SensorService) Record(ctx context.Context, reading monitoring.SensorReading) (*RecordResult, error) {
	sensorType, err := monitoring.ParseSensorType(string(reading.SensorType))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrValidation, err)
	}
	if strings.TrimSpace(reading.DeviceID) == "" {
		return nil, fmt.Errorf("%w: device_id is required", utils.ErrValidation)
	}
	if math.IsNaN(reading.Value) || math.IsInf(reading.Value, 0) {
		return nil, fmt.Errorf("%w: value must be a finite number", utils.ErrValidation)
	}

	reading.SensorType = sensorType
	if reading.Unit == "" {
		reading.Unit = sensorType.Unit()
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = s.now()
	} else {
		reading.Timestamp = reading.Timestamp.UTC()
	}

	set := s.thresholdFor(sensorType)
	band := set.Classify(reading.Value)

	if err := s.sensorRepo.Insert(ctx, models.NewSensorData(reading, band)); err != nil {
		s.logger.Error("Failed to store sensor reading",
			zap.String("sensor_type", string(sensorType)),
			zap.String("device_id", reading.DeviceID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", utils.ErrInternalServer, err)
	}

	if s.latest != nil {
		if err := s.latest.Set(ctx, cache.LatestReading{Reading: reading, Band: band}); err != nil {
			s.logger.Warn("Failed to cache latest reading", zap.String("sensor_type", string(sensorType)), zap.Error(err))
		}
	}

	result := &RecordResult{Reading: reading, Band: band}

	draft, raise := monitoring.RuleFor(reading, band, set)
	if raise && s.alerts != nil {
		alert, err := s.alerts.Create(ctx, draft)
		if err != nil {
			s.logger.Error("Failed to raise sensor alert",
				zap.String("sensor_type", string(sensorType)),
				zap.Float64("value", reading.Value),
				zap.Error(err))
			return result, err
		}
		result.AlertID = &alert.ID
	}

	s.logger.Debug("Sensor reading recorded",
		zap.String("sensor_type", string(sensorType)),
		zap.Float64("value", reading.Value),
		zap.String("band", string(band)))

	return result, nil
}

// Latest returns the most recent reading of every sensor type that has
// one, from the cache when possible
func (s *SensorService) Latest(ctx context.Context) (map[monitoring.SensorType]cache.LatestReading, error) {
	latest := make(map[monitoring.SensorType]cache.LatestReading, len(monitoring.SensorTypes))

	for _, sensorType := range monitoring.SensorTypes {
		if s.latest != nil {
			cached, err := s.latest.Get(ctx, sensorType)
			if err == nil {
				latest[sensorType] = *cached
				continue
			}
			if !errors.Is(err, cache.ErrCacheMiss) {
				s.logger.Warn("Latest reading cache unavailable", zap.Error(err))
			}
		}

		row, err := s.sensorRepo.Latest(ctx, string(sensorType))
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", utils.ErrInternalServer, err)
		}

		entry := cache.LatestReading{Reading: row.ToReading(), Band: monitoring.Band(row.Band)}
		if entry.Band == "" {
			entry.Band = s.thresholdFor(sensorType).Classify(row.Value)
		}
		latest[sensorType] = entry

		if s.latest != nil {
			if err := s.latest.Set(ctx, entry); err != nil {
				s.logger.Warn("Failed to backfill latest reading", zap.Error(err))
			}
		}
	}

	return latest, nil
}

// History returns stored readings, newest first
func (s *SensorService) History(ctx context.Context, q HistoryQuery) ([]models.SensorData, error) {
	if q.SensorType != "" {
		if _, err := monitoring.ParseSensorType(q.SensorType); err != nil {
			return nil, fmt.Errorf("%w: %w", utils.ErrValidation, err)
		}
	}

	if q.Start.IsZero() {
		q.Start = s.now().Add(-s.historyWindow)
	}
	if !q.End.IsZero() && q.End.Before(q.Start) {
		return nil, fmt.Errorf("%w: end_time is before start_time", utils.ErrValidation)
	}
	if q.Limit <= 0 {
		q.Limit = s.historyLimit
	}

	data, err := s.sensorRepo.Query(ctx, repository.SensorQuery{
		SensorType: q.SensorType,
		DeviceID:   q.DeviceID,
		Start:      q.Start.UTC(),
		End:        utcOrZero(q.End),
		Limit:      q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInternalServer, err)
	}
	return data, nil
}

// Thresholds returns a copy of the thresholds in effect
func (s *SensorService) Thresholds() monitoring.Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds.Clone()
}

// UpdateThresholds merges patches, persists the result and makes it
// effective. Nothing changes when any patch is invalid.
func (s *SensorService) UpdateThresholds(ctx context.Context, patches map[monitoring.SensorType]monitoring.ThresholdPatch) (monitoring.Thresholds, error) {
	if len(patches) == 0 {
		return nil, fmt.Errorf("%w: no thresholds given", utils.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.thresholds.Apply(patches)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrValidation, err)
	}

	now := s.now()
	rows := lo.Filter(models.ThresholdRows(next), func(row models.SensorThreshold, _ int) bool {
		_, patched := patches[monitoring.SensorType(row.SensorType)]
		return patched
	})
	for i := range rows {
		rows[i].UpdatedAt = now
	}

	if err := s.thresholdRepo.Upsert(ctx, rows); err != nil {
		s.logger.Error("Failed to persist thresholds", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", utils.ErrInternalServer, err)
	}
	s.thresholds = next

	s.logger.Info("Thresholds updated", zap.Strings("sensor_types", lo.Map(rows, func(r models.SensorThreshold, _ int) string {
		return r.SensorType
	})))

	return next.Clone(), nil
}

// Classify maps a value to a band under the thresholds in effect
func (s *SensorService) Classify(sensorType string, value float64) (monitoring.Band, monitoring.ThresholdSet, error) {
	thresholds := s.Thresholds()

	band, err := monitoring.Classify(monitoring.SensorType(sensorType), value, thresholds)
	if err != nil {
		return "", monitoring.ThresholdSet{}, fmt.Errorf("%w: %w", utils.ErrValidation, err)
	}
	return band, thresholds[monitoring.SensorType(sensorType)], nil
}

// Summary counts bands over the history window under the current
// thresholds and averages each sensor type, optionally for one device
func (s *SensorService) Summary(ctx context.Context, deviceID string) (*SensorSummary, error) {
	since := s.now().Add(-s.historyWindow)

	rows, err := s.sensorRepo.Query(ctx, repository.SensorQuery{DeviceID: deviceID, Start: since})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInternalServer, err)
	}

	readings := lo.Map(rows, func(row models.SensorData, _ int) monitoring.SensorReading {
		return row.ToReading()
	})
	bands := monitoring.SummarizeReadings(readings, s.Thresholds())

	averages := make(map[monitoring.SensorType]float64, len(bands))
	for sensorType := range bands {
		avg, err := s.sensorRepo.Average(ctx, string(sensorType), deviceID, since)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrInternalServer, err)
		}
		averages[sensorType] = avg
	}

	return &SensorSummary{Since: since, Bands: bands, Averages: averages}, nil
}

func (s *SensorService) thresholdFor(sensorType monitoring.SensorType) monitoring.ThresholdSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds[sensorType]
}

func utcOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
