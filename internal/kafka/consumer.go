package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/ev-monitor/backend/internal/config"
	"github.com/ev-monitor/backend/internal/utils"
	"go.uber.org/zap"
)

// MessageHandler is a function that processes a Kafka message
type MessageHandler func(ctx context.Context, msg *kafka.Message) error

// DLQSuffix is appended to a topic name to form its dead-letter topic
const DLQSuffix = ".dlq"

// Consumer provides functionality to consume messages from Kafka topics
type Consumer struct {
	consumer  *kafka.Consumer
	logger    *utils.Logger
	config    *config.KafkaConfig
	handlers  map[string][]MessageHandler
	dlq       Publisher
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
	isRunning atomic.Bool
	started   atomic.Bool
}

// NewConsumer creates a new Kafka consumer. A nil dlq disables dead-lettering.
func NewConsumer(cfg *config.KafkaConfig, logger *utils.Logger, dlq Publisher) (*Consumer, error) {
	kafkaConfig, err := clientConfig(cfg, kafka.ConfigMap{
		"group.id":                cfg.ConsumerGroup,
		"auto.offset.reset":       "earliest",
		"enable.auto.commit":      true,
		"auto.commit.interval.ms": 5000,
	})
	if err != nil {
		return nil, err
	}

	consumer, err := kafka.NewConsumer(kafkaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	c := newConsumer(cfg, logger, dlq)
	c.consumer = consumer
	return c, nil
}

func newConsumer(cfg *config.KafkaConfig, logger *utils.Logger, dlq Publisher) *Consumer {
	return &Consumer{
		logger:   logger.Named("kafka_consumer"),
		config:   cfg,
		handlers: make(map[string][]MessageHandler),
		dlq:      dlq,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// RegisterHandler registers a message handler for a specific topic
func (c *Consumer) RegisterHandler(topic string, handler MessageHandler) {
	c.handlers[topic] = append(c.handlers[topic], handler)
	c.logger.Info("Registered handler for topic", zap.String("topic", topic))
}

// Start subscribes to the registered topics and consumes them until ctx
// is canceled or Stop is called
func (c *Consumer) Start(ctx context.Context) error {
	if c.isRunning.Load() {
		return fmt.Errorf("consumer is already running")
	}

	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}

	if len(topics) == 0 {
		return fmt.Errorf("no topics registered")
	}

	if err := c.consumer.SubscribeTopics(topics, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	c.logger.Info("Subscribed to topics", zap.Strings("topics", topics))

	c.isRunning.Store(true)
	c.started.Store(true)
	go c.consumeLoop(ctx)

	return nil
}

// consumeLoop runs the main consumption loop
func (c *Consumer) consumeLoop(ctx context.Context) {
	defer close(c.done)
	defer c.isRunning.Store(false)

	c.logger.Info("Starting Kafka consumer loop")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Context canceled, stopping consumer")
			_ = c.consumer.Close()
			return

		case <-c.stop:
			c.logger.Info("Received stop signal, stopping consumer")
			_ = c.consumer.Close()
			return

		default:
			msg, err := c.consumer.ReadMessage(100 * time.Millisecond)
			if err != nil {
				var kafkaErr kafka.Error
				if errors.As(err, &kafkaErr) && kafkaErr.Code() == kafka.ErrTimedOut {
					continue
				}

				c.logger.Error("Error reading message from Kafka", zap.Error(err))
				continue
			}

			c.processMessage(ctx, msg)
		}
	}
}

// processMessage runs every handler registered for the message topic.
// Failed messages are forwarded to <topic>.dlq with the error in a header.
func (c *Consumer) processMessage(ctx context.Context, msg *kafka.Message) {
	if msg == nil || msg.TopicPartition.Topic == nil {
		return
	}

	topic := *msg.TopicPartition.Topic
	handlers, ok := c.handlers[topic]
	if !ok || len(handlers) == 0 {
		c.logger.Warn("No handlers registered for topic", zap.String("topic", topic))
		return
	}

	c.logger.Debug("Processing message",
		zap.String("topic", topic),
		zap.Int32("partition", msg.TopicPartition.Partition),
		zap.Int64("offset", int64(msg.TopicPartition.Offset)),
		zap.Time("timestamp", msg.Timestamp),
	)

	for i, handler := range handlers {
		err := handler(ctx, msg)
		if err == nil {
			continue
		}

		c.logger.Error("Handler failed to process message",
			zap.String("topic", topic),
			zap.Int("handler_index", i),
			zap.Error(err),
		)

		if c.dlq == nil {
			continue
		}

		dlqTopic := topic + DLQSuffix
		dlqMessage := &Message{
			Key:       string(msg.Key),
			Value:     msg.Value,
			Timestamp: time.Now(),
			Headers: map[string]string{
				"error":          err.Error(),
				"original_topic": topic,
			},
		}

		if err := c.dlq.Produce(dlqTopic, dlqMessage); err != nil {
			c.logger.Error("Failed to send message to DLQ",
				zap.String("dlq_topic", dlqTopic),
				zap.Error(err),
			)
		}
	}
}

// Stop stops the consumer loop and waits for it to exit
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	if c.started.Load() {
		<-c.done
	}
	c.logger.Info("Kafka consumer stopped")
}
