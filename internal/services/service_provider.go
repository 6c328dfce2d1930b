package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ev-monitor/backend/internal/cache"
	"github.com/ev-monitor/backend/internal/config"
	"github.com/ev-monitor/backend/internal/db"
	"github.com/ev-monitor/backend/internal/db/repository"
	"github.com/ev-monitor/backend/internal/kafka"
	"github.com/ev-monitor/backend/internal/utils"
	"go.uber.org/zap"
)

// ServiceProvider manages all services for the application
type ServiceProvider struct {
	logger              *utils.Logger
	config              *config.Config
	database            *db.Database
	latestStore         *cache.RedisLatestStore
	kafkaManager        *kafka.Manager
	kafkaHandler        *KafkaHandler
	alertHub            *AlertHub
	notificationService *NotificationService
	alertService        *AlertService
	sensorService       *SensorService
	cancel              context.CancelFunc
}

// NewServiceProvider creates a new service provider
func NewServiceProvider(
	logger *utils.Logger,
	config *config.Config,
	database *db.Database,
) *ServiceProvider {
	return &ServiceProvider{
		logger:   logger.Named("services"),
		config:   config,
		database: database,
	}
}

// Initialize initializes all services. Redis and Kafka are only used
// when enabled in configuration.
func (sp *ServiceProvider) Initialize(ctx context.Context) error {
	var err error

	runCtx, cancel := context.WithCancel(ctx)
	sp.cancel = cancel

	repoFactory := repository.NewRepositoryFactory(sp.database.DB)

	sp.notificationService = NewNotificationService(&sp.config.Notification, sp.logger)
	sp.alertService = NewAlertService(repoFactory, &sp.config.Alerts, sp.notificationService, sp.logger)
	sp.logger.Info("Alert service initialized", zap.String("transition_policy", string(sp.alertService.Policy())))

	sp.alertHub = NewAlertHub(sp.logger)
	go sp.alertHub.Run(runCtx)
	sp.alertService.AddListener(sp.alertHub)

	var latest cache.LatestStore
	if sp.config.Redis.Enabled {
		store := cache.NewRedisLatestStore(
			cache.NewRedisClient(&sp.config.Redis),
			time.Duration(sp.config.Redis.LatestTTL)*time.Second,
		)
		if err = store.Ping(ctx); err != nil {
			sp.logger.Warn("Redis unavailable, latest readings served from the database",
				zap.String("addr", sp.config.Redis.Addr),
				zap.Error(err))
			_ = store.Close()
		} else {
			sp.latestStore = store
			latest = store
			sp.logger.Info("Connected to Redis", zap.String("addr", sp.config.Redis.Addr))
		}
	}

	sp.sensorService, err = NewSensorService(repoFactory, &sp.config.Sensors, latest, sp.alertService, sp.logger)
	if err != nil {
		return fmt.Errorf("failed to create sensor service: %w", err)
	}
	if err = sp.sensorService.LoadThresholds(ctx); err != nil {
		return err
	}
	sp.logger.Info("Sensor service initialized")

	if !sp.config.Kafka.Enabled {
		sp.logger.Info("Kafka disabled, sensor ingestion limited to the HTTP API")
		return nil
	}

	sp.kafkaManager, err = kafka.NewManager(&sp.config.Kafka, sp.logger)
	if err != nil {
		return fmt.Errorf("failed to create Kafka manager: %w", err)
	}

	sp.kafkaHandler, err = NewKafkaHandler(sp.logger, sp.kafkaManager, sp.sensorService)
	if err != nil {
		return fmt.Errorf("failed to create Kafka handler: %w", err)
	}

	if err = sp.kafkaHandler.Initialize(runCtx); err != nil {
		return fmt.Errorf("failed to initialize Kafka handler: %w", err)
	}
	sp.alertService.AddListener(sp.kafkaHandler)

	if err = sp.kafkaManager.Start(); err != nil {
		return fmt.Errorf("failed to start Kafka manager: %w", err)
	}
	sp.logger.Info("Kafka manager started")

	sp.logger.Info("All services initialized successfully")
	return nil
}

// Shutdown performs a graceful shutdown of all services
func (sp *ServiceProvider) Shutdown() error {
	sp.logger.Info("Shutting down services")

	if sp.cancel != nil {
		sp.cancel()
	}

	if sp.kafkaManager != nil {
		sp.logger.Info("Stopping Kafka manager")
		if err := sp.kafkaManager.Stop(); err != nil {
			sp.logger.Error("Failed to stop Kafka manager", zap.Error(err))
		}
	}

	if sp.latestStore != nil {
		if err := sp.latestStore.Close(); err != nil {
			sp.logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}

	sp.logger.Info("Services shut down successfully")
	return nil
}

// GetAlertService returns the alert service
func (sp *ServiceProvider) GetAlertService() *AlertService {
	return sp.alertService
}

// GetSensorService returns the sensor service
func (sp *ServiceProvider) GetSensorService() *SensorService {
	return sp.sensorService
}

// GetAlertHub returns the websocket alert hub
func (sp *ServiceProvider) GetAlertHub() *AlertHub {
	return sp.alertHub
}

// GetKafkaManager returns the Kafka manager, nil when Kafka is disabled
func (sp *ServiceProvider) GetKafkaManager() *kafka.Manager {
	return sp.kafkaManager
}
