package repository

import (
	"context"
	"fmt"

	"RigWatch/internal/domain/models"
	pkgkafka "RigWatch/pkg/kafka"
)

// KafkaAlertSink publishes escalated anomaly events to the alert topic for
// downstream consumers (dashboards, archivers). Messages are keyed by sensor
// id so one sensor's alerts stay ordered on one partition.
type KafkaAlertSink struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaAlertSink(producer *pkgkafka.Producer, topic string) *KafkaAlertSink {
	if topic == "" {
		topic = "anomaly-alerts"
	}
	return &KafkaAlertSink{producer: producer, topic: topic}
}

func (s *KafkaAlertSink) Name() string { return "kafka" }

func (s *KafkaAlertSink) Write(ctx context.Context, e *models.AnomalyEvent) error {
	if err := s.producer.Publish(ctx, s.topic, []byte(e.SensorID), e); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}
