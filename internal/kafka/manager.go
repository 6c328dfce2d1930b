package kafka

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/ev-monitor/backend/internal/config"
	"github.com/ev-monitor/backend/internal/utils"
	"go.uber.org/zap"
)

// Header keys set on produced messages
const (
	HeaderEventType = "event_type"
	HeaderSource    = "source"
)

// producerCloser is a Publisher with an owned connection
type producerCloser interface {
	Publisher
	Close()
}

// Manager coordinates Kafka producers and consumers
type Manager struct {
	config         *config.KafkaConfig
	logger         *utils.Logger
	mainProducer   producerCloser
	dlqProducer    producerCloser
	consumers      map[string]*Consumer
	consumerCtx    context.Context
	consumerCancel context.CancelFunc
	wg             sync.WaitGroup
	mu             sync.Mutex
	isRunning      bool
	processed      chan struct{}
	failed         atomic.Int64
}

// NewManager creates a new Kafka manager
func NewManager(cfg *config.KafkaConfig, logger *utils.Logger) (*Manager, error) {
	kafkaLogger := logger.Named("kafka_manager")

	mainProducer, err := NewProducer(cfg, kafkaLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create main producer: %w", err)
	}

	dlqProducer, err := NewProducer(cfg, kafkaLogger)
	if err != nil {
		mainProducer.Close()
		return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
	}

	return newManager(cfg, kafkaLogger, mainProducer, dlqProducer), nil
}

func newManager(cfg *config.KafkaConfig, logger *utils.Logger, main, dlq producerCloser) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:         cfg,
		logger:         logger,
		mainProducer:   main,
		dlqProducer:    dlq,
		consumers:      make(map[string]*Consumer),
		consumerCtx:    ctx,
		consumerCancel: cancel,
		processed:      make(chan struct{}, 100),
	}
}

// Start starts all registered consumers
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("kafka manager is already running")
	}

	for name, consumer := range m.consumers {
		m.logger.Info("Starting consumer", zap.String("name", name))
		if err := consumer.Start(m.consumerCtx); err != nil {
			m.logger.Error("Failed to start consumer",
				zap.String("name", name),
				zap.Error(err))
			m.stopAllConsumers()
			return fmt.Errorf("failed to start consumer %s: %w", name, err)
		}
	}

	m.wg.Add(1)
	go m.monitorProcessing()

	m.isRunning = true
	m.logger.Info("Kafka manager started")
	return nil
}

// AddConsumer creates and registers a consumer with specific handlers
func (m *Manager) AddConsumer(name string, handlers map[string][]MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isRunning {
		return fmt.Errorf("cannot add consumer while manager is running")
	}

	if _, exists := m.consumers[name]; exists {
		return fmt.Errorf("consumer with name %s already exists", name)
	}

	consumer, err := NewConsumer(m.config, m.logger, m.dlqProducer)
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", name, err)
	}

	topics := make([]string, 0, len(handlers))
	for topic, topicHandlers := range handlers {
		topics = append(topics, topic)
		for _, handler := range topicHandlers {
			consumer.RegisterHandler(topic, m.wrapHandler(handler))
		}
	}

	m.consumers[name] = consumer
	m.logger.Info("Added consumer",
		zap.String("name", name),
		zap.Strings("topics", topics))

	return nil
}

// wrapHandler counts processed and failed messages for the statistics log
func (m *Manager) wrapHandler(handler MessageHandler) MessageHandler {
	return func(ctx context.Context, msg *kafka.Message) error {
		err := handler(ctx, msg)
		if err != nil {
			m.failed.Add(1)
		}

		select {
		case m.processed <- struct{}{}:
		default:
			// buffer full under high throughput
		}

		return err
	}
}

// ProduceMessage sends a message to the specified topic
func (m *Manager) ProduceMessage(topic string, key string, value interface{}, headers map[string]string) error {
	message := &Message{
		Key:       key,
		Value:     value,
		Timestamp: time.Now(),
		Headers:   headers,
	}

	return m.mainProducer.Produce(topic, message)
}

// ProduceAlertEvent publishes an alert lifecycle event keyed by key
func (m *Manager) ProduceAlertEvent(key, eventType string, event interface{}) error {
	return m.ProduceMessage(m.config.Topics.AlertEvents, key, event, map[string]string{
		HeaderEventType: eventType,
		HeaderSource:    "ev-monitor",
	})
}

// ProduceSensorReading publishes a raw reading payload to the readings topic
func (m *Manager) ProduceSensorReading(key string, reading interface{}) error {
	return m.ProduceMessage(m.config.Topics.SensorReadings, key, reading, nil)
}

// PayloadHandler processes the raw value of a message
type PayloadHandler func(ctx context.Context, payload []byte) error

// PayloadMessageHandler adapts a PayloadHandler to a MessageHandler
func PayloadMessageHandler(handler PayloadHandler) MessageHandler {
	return func(ctx context.Context, msg *kafka.Message) error {
		if len(msg.Value) == 0 {
			return fmt.Errorf("empty message payload")
		}
		return handler(ctx, msg.Value)
	}
}

// RegisterSensorReadingHandler consumes the sensor readings topic with handler
func (m *Manager) RegisterSensorReadingHandler(name string, handler PayloadHandler) error {
	topic := m.config.Topics.SensorReadings
	return m.AddConsumer(
		fmt.Sprintf("%s-sensor-readings", name),
		map[string][]MessageHandler{
			topic: {PayloadMessageHandler(handler)},
		},
	)
}

// monitorProcessing logs message processing statistics every minute
func (m *Manager) monitorProcessing() {
	defer m.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	messageCount := 0

	for {
		select {
		case <-m.consumerCtx.Done():
			m.logger.Info("Message processing monitor stopped")
			return

		case <-m.processed:
			messageCount++

		case <-ticker.C:
			if messageCount > 0 {
				m.logger.Info("Message processing statistics",
					zap.Int("processed_messages", messageCount),
					zap.Int64("failed_messages", m.failed.Swap(0)),
					zap.String("interval", "1m"))
				messageCount = 0
			}
		}
	}
}

// stopAllConsumers stops all consumers
func (m *Manager) stopAllConsumers() {
	for name, consumer := range m.consumers {
		m.logger.Info("Stopping consumer", zap.String("name", name))
		consumer.Stop()
	}
}

// Stop stops all consumers and closes the producers
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isRunning {
		m.closeProducers()
		return nil
	}

	m.consumerCancel()
	m.stopAllConsumers()
	m.wg.Wait()
	m.closeProducers()

	m.isRunning = false
	m.logger.Info("Kafka manager stopped")
	return nil
}

func (m *Manager) closeProducers() {
	m.mainProducer.Close()
	m.dlqProducer.Close()
}

// IsRunning returns whether the Kafka manager is running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}
