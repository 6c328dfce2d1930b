package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/ev-monitor/backend/internal/config"
	"github.com/ev-monitor/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type produced struct {
	topic   string
	message *Message
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []produced
	err      error
	closed   bool
}

func (f *fakeProducer) Produce(topic string, message *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, produced{topic: topic, message: message})
	return nil
}

func (f *fakeProducer) Close() { f.closed = true }

func testKafkaConfig() *config.KafkaConfig {
	return &config.KafkaConfig{
		Brokers:       "localhost:9092",
		ConsumerGroup: "ev-monitor-test",
		Topics: config.KafkaTopics{
			SensorReadings: "ev.sensor.readings",
			AlertEvents:    "ev.alert.events",
		},
	}
}

func message(topic string, value []byte) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0},
		Key:            []byte("k1"),
		Value:          value,
	}
}

func TestBuildMessage(t *testing.T) {
	t.Run("Should JSON encode struct values", func(t *testing.T) {
		msg, err := buildMessage("alerts", &Message{
			Key:     "alert-1",
			Value:   map[string]int{"id": 1},
			Headers: map[string]string{HeaderEventType: "created"},
		})
		require.NoError(t, err)

		assert.Equal(t, "alerts", *msg.TopicPartition.Topic)
		assert.Equal(t, kafka.PartitionAny, msg.TopicPartition.Partition)
		assert.Equal(t, []byte("alert-1"), msg.Key)
		assert.JSONEq(t, `{"id":1}`, string(msg.Value))
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, HeaderEventType, msg.Headers[0].Key)
		assert.Equal(t, []byte("created"), msg.Headers[0].Value)
	})

	t.Run("Should pass raw bytes through", func(t *testing.T) {
		msg, err := buildMessage("readings", &Message{Value: []byte(`{"value":1}`)})
		require.NoError(t, err)
		assert.Equal(t, `{"value":1}`, string(msg.Value))
		assert.Nil(t, msg.Key)
		assert.Empty(t, msg.Headers)
	})

	t.Run("Should fail on unencodable values", func(t *testing.T) {
		_, err := buildMessage("x", &Message{Value: make(chan int)})
		assert.Error(t, err)
	})
}

func TestClientConfig_Security(t *testing.T) {
	cfg := testKafkaConfig()
	cfg.SecurityEnable = true
	cfg.SecurityUser = "user"
	cfg.SecurityPass = "pass"

	cm, err := clientConfig(cfg, kafka.ConfigMap{"group.id": "g"})
	require.NoError(t, err)

	for key, want := range map[string]string{
		"bootstrap.servers": "localhost:9092",
		"group.id":          "g",
		"security.protocol": "SASL_SSL",
		"sasl.username":     "user",
	} {
		got, err := cm.Get(key, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}

	plain, err := clientConfig(testKafkaConfig(), nil)
	require.NoError(t, err)
	got, err := plain.Get("security.protocol", nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestConsumer_ProcessMessage(t *testing.T) {
	dlq := &fakeProducer{}
	c := newConsumer(testKafkaConfig(), utils.NewNopLogger(), dlq)

	var seen []string
	c.RegisterHandler("ev.sensor.readings", func(_ context.Context, msg *kafka.Message) error {
		seen = append(seen, string(msg.Value))
		if string(msg.Value) == "bad" {
			return errors.New("cannot decode")
		}
		return nil
	})

	ctx := context.Background()
	c.processMessage(ctx, message("ev.sensor.readings", []byte("good")))
	c.processMessage(ctx, message("ev.sensor.readings", []byte("bad")))
	c.processMessage(ctx, message("unknown.topic", []byte("ignored")))
	c.processMessage(ctx, nil)

	assert.Equal(t, []string{"good", "bad"}, seen)

	require.Len(t, dlq.messages, 1)
	dead := dlq.messages[0]
	assert.Equal(t, "ev.sensor.readings"+DLQSuffix, dead.topic)
	assert.Equal(t, "k1", dead.message.Key)
	assert.Equal(t, []byte("bad"), dead.message.Value)
	assert.Equal(t, "cannot decode", dead.message.Headers["error"])
	assert.Equal(t, "ev.sensor.readings", dead.message.Headers["original_topic"])
}

func TestConsumer_StartWithoutTopics(t *testing.T) {
	c := newConsumer(testKafkaConfig(), utils.NewNopLogger(), nil)
	assert.Error(t, c.Start(context.Background()))
	c.Stop()
}

func TestManager_ProduceAlertEvent(t *testing.T) {
	main := &fakeProducer{}
	dlq := &fakeProducer{}
	m := newManager(testKafkaConfig(), utils.NewNopLogger(), main, dlq)

	require.NoError(t, m.ProduceAlertEvent("alert-7", "status_changed", map[string]string{"status": "resolved"}))
	require.NoError(t, m.ProduceSensorReading("current", json.RawMessage(`{"value":1}`)))

	require.Len(t, main.messages, 2)
	assert.Equal(t, "ev.alert.events", main.messages[0].topic)
	assert.Equal(t, "alert-7", main.messages[0].message.Key)
	assert.Equal(t, "status_changed", main.messages[0].message.Headers[HeaderEventType])
	assert.Equal(t, "ev.sensor.readings", main.messages[1].topic)

	main.err = errors.New("queue full")
	assert.Error(t, m.ProduceAlertEvent("alert-8", "created", nil))

	assert.NoError(t, m.Stop())
	assert.True(t, main.closed)
	assert.True(t, dlq.closed)
	assert.False(t, m.IsRunning())
}

func TestManager_WrapHandlerCountsFailures(t *testing.T) {
	m := newManager(testKafkaConfig(), utils.NewNopLogger(), &fakeProducer{}, &fakeProducer{})

	handler := m.wrapHandler(PayloadMessageHandler(func(_ context.Context, payload []byte) error {
		if string(payload) == "bad" {
			return errors.New("bad payload")
		}
		return nil
	}))

	ctx := context.Background()
	assert.NoError(t, handler(ctx, message("t", []byte("ok"))))
	assert.Error(t, handler(ctx, message("t", []byte("bad"))))
	assert.Error(t, handler(ctx, message("t", nil)), "empty payloads are rejected")

	assert.Equal(t, int64(2), m.failed.Load())
	assert.Len(t, m.processed, 3)
}
