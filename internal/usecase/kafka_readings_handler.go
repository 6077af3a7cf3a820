package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"RigWatch/internal/domain/models"
	domrepo "RigWatch/internal/domain/repository"
	pkgkafka "RigWatch/pkg/kafka"
)

// Submitter is the lane set the handler feeds decoded readings into.
type Submitter interface {
	Submit(ctx context.Context, r *models.SensorReading) error
}

// KafkaReadingsHandler decodes sensor readings off the ingest topic and hands
// them to the sensor lanes. Decode and validation failures are permanent and
// routed to the DLQ by the consumer; lane submission errors are retryable.
type KafkaReadingsHandler struct {
	topic    string
	lanes    Submitter
	validate *validator.Validate
	metrics  domrepo.Metrics
}

func NewKafkaReadingsHandler(topic string, lanes Submitter, metrics domrepo.Metrics) *KafkaReadingsHandler {
	return &KafkaReadingsHandler{
		topic:    topic,
		lanes:    lanes,
		validate: validator.New(),
		metrics:  metrics,
	}
}

func (h *KafkaReadingsHandler) Topic() string { return h.topic }

func (h *KafkaReadingsHandler) Handle(ctx context.Context, b []byte) error {
	var r models.SensorReading
	if err := json.Unmarshal(b, &r); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode reading: %w", err)
	}
	if err := defaults.Set(&r); err != nil {
		h.metrics.RecordError("consumer_defaults")
		return fmt.Errorf("apply defaults: %w", err)
	}
	if err := h.validate.StructCtx(ctx, &r); err != nil {
		h.metrics.RecordError("consumer_validate")
		return fmt.Errorf("invalid reading: %w", err)
	}

	// E2E latency from measurement time to now (approx)
	h.metrics.RecordLatency("ingest_e2e", time.Since(r.EventTime()).Seconds())

	if err := h.lanes.Submit(ctx, &r); err != nil {
		h.metrics.RecordError("consumer_submit")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaReadingsHandler)(nil)
