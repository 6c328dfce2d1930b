package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ev-monitor/backend/internal/kafka"
	"github.com/ev-monitor/backend/internal/monitoring"
	"github.com/ev-monitor/backend/internal/utils"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const sensorReadingSchema = "sensor_reading"

// eventBus is the part of kafka.Manager the handler needs
type eventBus interface {
	RegisterSensorReadingHandler(name string, handler kafka.PayloadHandler) error
	ProduceAlertEvent(key, eventType string, event interface{}) error
}

// ReadingRecorder stores one sensor reading
type ReadingRecorder interface {
	Record(ctx context.Context, reading monitoring.SensorReading) (*RecordResult, error)
}

// KafkaHandler ingests sensor readings from Kafka and publishes alert events
type KafkaHandler struct {
	logger      *utils.Logger
	bus         eventBus
	recorder    ReadingRecorder
	schemas     *utils.SchemaRegistry
	eventBuffer chan AlertEvent
}

// NewKafkaHandler creates a new Kafka message handler service
func NewKafkaHandler(logger *utils.Logger, bus eventBus, recorder ReadingRecorder) (*KafkaHandler, error) {
	schema, err := utils.NewJSONSchemaBuilder("Sensor reading").
		AddEnumProperty("sensor_type", lo.Map(monitoring.SensorTypes, func(t monitoring.SensorType, _ int) string {
			return string(t)
		}), true).
		AddNumberProperty("value", true).
		AddStringProperty("device_id", true).
		AddStringProperty("location", false).
		AddStringProperty("unit", false).
		AddDateTimeProperty("timestamp", false).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build sensor reading schema: %w", err)
	}

	schemas := utils.NewSchemaRegistry()
	if err := schemas.Register(sensorReadingSchema, schema); err != nil {
		return nil, err
	}

	return &KafkaHandler{
		logger:      logger.Named("kafka_handler"),
		bus:         bus,
		recorder:    recorder,
		schemas:     schemas,
		eventBuffer: make(chan AlertEvent, 100),
	}, nil
}

// Initialize registers the reading consumer and starts publishing
// buffered alert events until ctx is canceled
func (h *KafkaHandler) Initialize(ctx context.Context) error {
	if err := h.bus.RegisterSensorReadingHandler("sensor-ingest", h.handleSensorReading); err != nil {
		return fmt.Errorf("failed to register sensor reading handler: %w", err)
	}

	go h.processEventBuffer(ctx)
	return nil
}

// OnAlertEvent buffers event for publication. Events are dropped with a
// warning when the buffer is full.
func (h *KafkaHandler) OnAlertEvent(event AlertEvent) {
	select {
	case h.eventBuffer <- event:
	default:
		h.logger.Warn("Alert event buffer full, dropping event",
			zap.String("event_id", event.EventID),
			zap.String("action", string(event.Action)))
	}
}

// handleSensorReading validates a reading payload and records it
func (h *KafkaHandler) handleSensorReading(ctx context.Context, payload []byte) error {
	if err := h.schemas.Validate(sensorReadingSchema, payload); err != nil {
		h.logger.Warn("Rejected sensor reading", zap.Error(err))
		return err
	}

	var reading monitoring.SensorReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		return fmt.Errorf("%w: failed to decode sensor reading: %v", utils.ErrValidation, err)
	}

	result, err := h.recorder.Record(ctx, reading)
	if err != nil {
		return fmt.Errorf("failed to record sensor reading: %w", err)
	}

	if result.AlertID != nil {
		h.logger.Info("Sensor reading raised alert",
			zap.String("sensor_type", string(result.Reading.SensorType)),
			zap.String("band", string(result.Band)),
			zap.Uint("alert_id", *result.AlertID))
	}
	return nil
}

// processEventBuffer publishes buffered alert events
func (h *KafkaHandler) processEventBuffer(ctx context.Context) {
	h.logger.Info("Starting alert event publisher")

	for {
		select {
		case <-ctx.Done():
			h.drainEventBuffer()
			h.logger.Info("Alert event publisher stopped")
			return

		case event := <-h.eventBuffer:
			h.publish(event)
		}
	}
}

func (h *KafkaHandler) drainEventBuffer() {
	for {
		select {
		case event := <-h.eventBuffer:
			h.publish(event)
		default:
			return
		}
	}
}

func (h *KafkaHandler) publish(event AlertEvent) {
	key := strconv.FormatUint(uint64(event.Alert.ID), 10)
	if err := h.bus.ProduceAlertEvent(key, string(event.Action), event); err != nil {
		h.logger.Error("Failed to publish alert event",
			zap.String("event_id", event.EventID),
			zap.Uint("alert_id", event.Alert.ID),
			zap.Error(err))
	}
}
