package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pesabridge/payment-broker/internal/config"
)

// UnmatchedWebhookProducer publishes gateway callbacks that could not be
// correlated with any known transaction. Operations teams consume the topic
// to investigate orphaned payments.
type UnmatchedWebhookProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// Returns nil producer if cfg.UnmatchedTopic is empty (publishing disabled)
func NewUnmatchedWebhookProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*UnmatchedWebhookProducer, error) {
	if cfg.UnmatchedTopic == "" {
		logger.Info("Unmatched webhook topic is not configured. UnmatchedWebhookProducer will not be initialized.")
		return nil, nil
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for unmatched webhook producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.UnmatchedTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure topic %s exists for unmatched webhook producer: %w", cfg.UnmatchedTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.UnmatchedTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write unmatched webhook messages", "topic", cfg.UnmatchedTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Successfully wrote unmatched webhook messages", "topic", cfg.UnmatchedTopic, "count", len(messages))
			}
		},
	}

	return &UnmatchedWebhookProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.UnmatchedTopic,
	}, nil
}

// PublishUnmatched sends the raw callback payload keyed by the placeholder
// reference created for it.
func (p *UnmatchedWebhookProducer) PublishUnmatched(ctx context.Context, reference string, callbackPayload []byte, reason string) error {
	if p == nil || p.writer == nil {
		return nil
	}

	messagePayload := struct {
		Reference       string `json:"reference"`
		CallbackPayload string `json:"callback_payload"`
		Reason          string `json:"reason"`
		Timestamp       string `json:"timestamp"`
	}{
		Reference:       reference,
		CallbackPayload: string(callbackPayload),
		Reason:          reason,
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
	}

	jsonValue, err := json.Marshal(messagePayload)
	if err != nil {
		return fmt.Errorf("failed to marshal unmatched webhook message value: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(reference),
		Value: jsonValue,
		Headers: []kafka.Header{
			{Key: "unmatched-reason", Value: []byte(reason)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish unmatched webhook",
			"topic", p.topic,
			"reference", reference,
			"error", err,
		)
		return fmt.Errorf("failed to publish unmatched webhook to %s: %w", p.topic, err)
	}

	p.logger.Info("Published unmatched webhook",
		"topic", p.topic,
		"reference", reference,
		"reason", reason,
	)
	return nil
}

func (p *UnmatchedWebhookProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.logger.Info("Closing unmatched webhook Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
