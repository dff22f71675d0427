package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	contractsv1 "marketdao/contracts/gen/events/v1"
)

// KafkaPublisher writes envelopes to kafka. The message key is the
// envelope partition key so events for one aggregate stay ordered.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers not provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Logger:                 kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Debug(fmt.Sprintf(msg, args...)) }),
		ErrorLogger:            kafka.LoggerFunc(func(msg string, args ...interface{}) { logger.Error(fmt.Sprintf(msg, args...)) }),
	}
	logger.Info("kafka publisher initialized",
		"event", "kafka_publisher_started",
		"module", messagingModule,
		"layer", "platform",
		"brokers", brokers,
	)
	return &KafkaPublisher{writer: writer, logger: logger}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	message, err := encodeMessage(topic, event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, message); err != nil {
		p.logger.Error("kafka write failed",
			"event", "kafka_publish_failed",
			"module", messagingModule,
			"layer", "platform",
			"topic", topic,
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return fmt.Errorf("write kafka topic %s: %w", topic, err)
	}
	p.logger.Debug("event published",
		"event", "kafka_publish",
		"module", messagingModule,
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// KafkaSubscriber starts one consumer-group reader per subscription.
// Offsets are committed only after the handler succeeds.
type KafkaSubscriber struct {
	brokers []string
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewKafkaSubscriber(brokers []string, logger *slog.Logger) (*KafkaSubscriber, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers not provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSubscriber{brokers: brokers, logger: logger}, nil
}

func (s *KafkaSubscriber) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, contractsv1.Envelope) error,
) error {
	if strings.TrimSpace(consumerGroup) == "" {
		return errors.New("consumer group is required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     s.brokers,
		Topic:       topic,
		GroupID:     consumerGroup,
		StartOffset: kafka.FirstOffset,
		MaxBytes:    10e6,
		Dialer:      &kafka.Dialer{Timeout: 10 * time.Second},
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if err := reader.Close(); err != nil {
				s.logger.Error("kafka reader close failed",
					"event", "kafka_reader_close_failed",
					"module", messagingModule,
					"layer", "platform",
					"topic", topic,
					"error", err.Error(),
				)
			}
		}()
		s.consume(ctx, reader, topic, consumerGroup, handler)
	}()
	return nil
}

func (s *KafkaSubscriber) consume(
	ctx context.Context,
	reader *kafka.Reader,
	topic string,
	consumerGroup string,
	handler func(context.Context, contractsv1.Envelope) error,
) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("kafka read failed",
				"event", "kafka_consume_read_failed",
				"module", messagingModule,
				"layer", "platform",
				"topic", topic,
				"consumer_group", consumerGroup,
				"error", err.Error(),
			)
			continue
		}
		event, err := decodeMessage(msg)
		if err != nil {
			s.logger.Error("kafka message decode failed",
				"event", "kafka_consume_decode_failed",
				"module", messagingModule,
				"layer", "platform",
				"topic", topic,
				"offset", msg.Offset,
				"error", err.Error(),
			)
			_ = reader.CommitMessages(ctx, msg)
			continue
		}
		if err := handler(ctx, event); err != nil {
			s.logger.Error("consumer handler failed",
				"event", "kafka_consume_failed",
				"module", messagingModule,
				"layer", "platform",
				"topic", topic,
				"consumer_group", consumerGroup,
				"event_id", event.EventID,
				"event_type", event.EventType,
				"error", err.Error(),
			)
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			s.logger.Warn("kafka commit failed",
				"event", "kafka_commit_failed",
				"module", messagingModule,
				"layer", "platform",
				"topic", topic,
				"event_id", event.EventID,
				"error", err.Error(),
			)
		}
	}
}

// Wait blocks until every reader has closed.
func (s *KafkaSubscriber) Wait() {
	s.wg.Wait()
}

func encodeMessage(topic string, event contractsv1.Envelope) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event envelope: %w", err)
	}
	key := event.PartitionKey
	if key == "" {
		key = event.EventID
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "source_service", Value: []byte(event.SourceService)},
			{Key: "occurred_at", Value: []byte(event.OccurredAt.UTC().Format(time.RFC3339Nano))},
		},
	}, nil
}

func decodeMessage(msg kafka.Message) (contractsv1.Envelope, error) {
	var event contractsv1.Envelope
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return contractsv1.Envelope{}, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if strings.TrimSpace(event.EventID) == "" {
		return contractsv1.Envelope{}, errors.New("event envelope has no event_id")
	}
	return event, nil
}
