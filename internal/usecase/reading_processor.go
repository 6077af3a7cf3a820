package usecase

import (
	"context"
	"fmt"
	"time"

	"RigWatch/internal/dedup"
	"RigWatch/internal/detector"
	"RigWatch/internal/domain/models"
	domrepo "RigWatch/internal/domain/repository"
	"RigWatch/internal/escalation"
	"RigWatch/internal/fanout"
	"RigWatch/pkg/logger"
)

// Broadcaster pushes escalated events to live subscribers.
type Broadcaster interface {
	Broadcast(e *models.AnomalyEvent)
}

// ReadingProcessor is the per-reading orchestration: detect, deduplicate,
// then persist and escalate. Detection and dedup are quick in-memory work
// done on the reading's lane; everything after the dedup decision is I/O and
// must not hold sensor state.
type ReadingProcessor struct {
	pipeline  *detector.Pipeline
	dedup     *dedup.Deduplicator
	escalator *escalation.Engine
	sinks     *fanout.FanOut
	alertLog  domrepo.AlertLog
	broadcast Broadcaster
	metrics   domrepo.Metrics
	log       *logger.Logger
}

// NewReadingProcessor wires the processing chain. broadcast may be nil.
func NewReadingProcessor(
	pipeline *detector.Pipeline,
	dd *dedup.Deduplicator,
	escalator *escalation.Engine,
	sinks *fanout.FanOut,
	alertLog domrepo.AlertLog,
	broadcast Broadcaster,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *ReadingProcessor {
	return &ReadingProcessor{
		pipeline:  pipeline,
		dedup:     dd,
		escalator: escalator,
		sinks:     sinks,
		alertLog:  alertLog,
		broadcast: broadcast,
		metrics:   metrics,
		log:       log,
	}
}

// Process runs one reading through the full chain.
func (p *ReadingProcessor) Process(ctx context.Context, r *models.SensorReading) error {
	if r == nil {
		return fmt.Errorf("reading is nil")
	}
	start := time.Now()
	p.metrics.RecordReading(r.SensorType)

	if !r.Usable() {
		p.metrics.RecordError("reading_quality_" + r.QualityFlag)
		p.log.Debug("skipping reading with non-good quality",
			logger.String("reading_id", r.ReadingID),
			logger.String("sensor_id", r.SensorID),
			logger.String("quality", r.QualityFlag),
		)
		return nil
	}

	event := p.pipeline.Detect(r)
	if event == nil {
		return nil
	}

	emit, err := p.dedup.ShouldEmit(ctx, event)
	if err != nil {
		p.log.Warn("dedup store error, failing open",
			logger.String("event_id", event.EventID),
			logger.Error(err),
		)
	}
	if !emit {
		p.log.Debug("anomaly suppressed",
			logger.String("sensor_id", event.SensorID),
			logger.String("kind", string(event.Kind)),
			logger.String("severity", event.Severity.String()),
		)
		return nil
	}

	p.log.Info("anomaly escalated",
		logger.String("event_id", event.EventID),
		logger.String("sensor_id", event.SensorID),
		logger.String("kind", string(event.Kind)),
		logger.String("severity", event.Severity.String()),
		logger.Any("value", event.ActualValue),
	)

	results := p.sinks.Write(ctx, event)
	outcome := p.escalator.Escalate(ctx, event)

	if err := p.alertLog.RecordOutcome(ctx, event.EventID, outcome); err != nil {
		p.metrics.RecordError("record_outcome")
		p.log.Error("failed to record escalation outcome",
			logger.String("event_id", event.EventID),
			logger.Error(err),
		)
	}

	if p.broadcast != nil {
		p.broadcast.Broadcast(event)
	}

	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	if failed := fanout.Failed(results); len(failed) > 0 {
		return fmt.Errorf("event %s: %d of %d sink writes failed", event.EventID, len(failed), len(results))
	}
	return nil
}
