// Package alert publishes security alerts to external sinks. The admission
// pipeline pushes alert-action violations here; everything else (dashboards,
// paging) lives downstream of the topic.
package alert

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/apiguard/internal/config"
	"github.com/turtacn/apiguard/internal/protection"
	"github.com/turtacn/apiguard/pkg/logger"
)

// messageWriter is the subset of kafka.Writer used by the alerter, extracted
// so tests can substitute an in-memory writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAlerter publishes violations to a Kafka topic as JSON.
type KafkaAlerter struct {
	writer messageWriter
	logger logger.Logger
}

// NewKafkaAlerter creates an alerter writing to the configured brokers/topic.
func NewKafkaAlerter(cfg *config.AlertingConfig, log logger.Logger) *KafkaAlerter {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: cfg.BatchTimeout,
		BatchSize:    cfg.BatchSize,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
	}

	return &KafkaAlerter{
		writer: writer,
		logger: log.WithComponent("kafka-alerter"),
	}
}

// Alert sends one violation to the alert topic, keyed by violation type so
// consumers can partition by detector.
func (a *KafkaAlerter) Alert(ctx context.Context, violation protection.SecurityViolation) error {
	payload, err := json.Marshal(violation)
	if err != nil {
		a.logger.Error(ctx, "Failed to marshal security alert", err,
			logger.String("violation_id", violation.ID))
		return err
	}

	err = a.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(violation.Type),
		Value: payload,
	})
	if err != nil {
		a.logger.Error(ctx, "Failed to write alert to Kafka", err,
			logger.String("violation_id", violation.ID))
	}
	return err
}

// Close closes the underlying Kafka writer.
func (a *KafkaAlerter) Close() error {
	return a.writer.Close()
}
