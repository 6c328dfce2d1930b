package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ev-monitor/backend/internal/kafka"
	"github.com/ev-monitor/backend/internal/monitoring"
	"github.com/ev-monitor/backend/internal/testutil"
	"github.com/ev-monitor/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedEvent struct {
	key       string
	eventType string
	event     AlertEvent
}

type fakeBus struct {
	mu        sync.Mutex
	handler   kafka.PayloadHandler
	published []publishedEvent
	err       error
}

func (b *fakeBus) RegisterSensorReadingHandler(_ string, handler kafka.PayloadHandler) error {
	b.handler = handler
	return nil
}

func (b *fakeBus) ProduceAlertEvent(key, eventType string, event interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, publishedEvent{key: key, eventType: eventType, event: event.(AlertEvent)})
	return nil
}

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

type fakeRecorder struct {
	readings []monitoring.SensorReading
	err      error
}

func (r *fakeRecorder) Record(_ context.Context, reading monitoring.SensorReading) (*RecordResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.readings = append(r.readings, reading)
	id := uint(5)
	return &RecordResult{Reading: reading, Band: monitoring.BandCritical, AlertID: &id}, nil
}

func TestKafkaHandler_SensorReadings(t *testing.T) {
	bus := &fakeBus{}
	recorder := &fakeRecorder{}
	handler, err := NewKafkaHandler(testutil.NewTestLogger(t), bus, recorder)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, handler.Initialize(ctx))
	require.NotNil(t, bus.handler)

	t.Run("Should record valid payloads", func(t *testing.T) {
		payload := `{"sensor_type":"current","value":19.5,"device_id":"charger-01","timestamp":"2024-06-10T11:59:00Z"}`
		require.NoError(t, bus.handler(ctx, []byte(payload)))

		require.Len(t, recorder.readings, 1)
		assert.Equal(t, monitoring.SensorCurrent, recorder.readings[0].SensorType)
		assert.Equal(t, 19.5, recorder.readings[0].Value)
		assert.True(t, recorder.readings[0].Timestamp.Equal(time.Date(2024, 6, 10, 11, 59, 0, 0, time.UTC)))
	})

	invalid := map[string]string{
		"unknown type":   `{"sensor_type":"infrared","value":1,"device_id":"d"}`,
		"missing device": `{"sensor_type":"smoke","value":1}`,
		"string value":   `{"sensor_type":"smoke","value":"high","device_id":"d"}`,
		"not json":       `{sensor`,
	}
	for name, payload := range invalid {
		t.Run("Should reject "+name, func(t *testing.T) {
			err := bus.handler(ctx, []byte(payload))
			assert.ErrorIs(t, err, utils.ErrValidation)
		})
	}
	assert.Len(t, recorder.readings, 1)

	t.Run("Should surface recorder failures", func(t *testing.T) {
		recorder.err = errors.New("database gone")
		err := bus.handler(ctx, []byte(`{"sensor_type":"smoke","value":1,"device_id":"d"}`))
		assert.ErrorContains(t, err, "database gone")
	})
}

func TestKafkaHandler_PublishesAlertEvents(t *testing.T) {
	bus := &fakeBus{}
	handler, err := NewKafkaHandler(testutil.NewTestLogger(t), bus, &fakeRecorder{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, handler.Initialize(ctx))

	record := monitoring.AlertRecord{ID: 17, AlertType: monitoring.AlertSmoke, Status: monitoring.StatusAcknowledged}
	handler.OnAlertEvent(newAlertEvent(AlertStatusChanged, record, monitoring.CountsDelta{
		monitoring.StatusNew:          -1,
		monitoring.StatusAcknowledged: 1,
	}, testNow))

	require.Eventually(t, func() bool { return bus.count() == 1 }, time.Second, 10*time.Millisecond)

	published := bus.published[0]
	assert.Equal(t, "17", published.key)
	assert.Equal(t, "status_changed", published.eventType)
	assert.Equal(t, -1, published.event.CountsDelta[monitoring.StatusNew])

	encoded, err := json.Marshal(published.event)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"counts_delta":{"acknowledged":1,"new":-1}`)
	assert.Contains(t, string(encoded), `"event_id":"`)

	cancel()
}
