package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"RigWatch/internal/domain/models"
	pkgch "RigWatch/pkg/clickhouse"
	applogger "RigWatch/pkg/logger"
)

// CHEventSink persists anomaly events to ClickHouse for time-series analysis.
// The table is a ReplacingMergeTree keyed on the event's stable identifier,
// so at-least-once redelivery collapses to one row.
type CHEventSink struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHEventSink(ch *pkgch.Client) *CHEventSink {
	return &CHEventSink{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHEventSink) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHEventSink) Name() string { return "clickhouse" }

func (s *CHEventSink) Write(ctx context.Context, e *models.AnomalyEvent) error {
	start := time.Now()
	const q = `
        INSERT INTO anomaly_events
            (stable_id, event_id, reading_id, sensor_id, platform_id, sensor_type,
             kind, severity, actual_value, reference_value, unit, description, detected_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := s.db.ExecContext(ctx, q,
		e.StableID(), e.EventID, e.ReadingID, e.SensorID, e.PlatformID, e.SensorType,
		string(e.Kind), e.Severity.String(), e.ActualValue, e.ReferenceValue,
		e.Unit, e.Description, e.DetectionTime(),
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse anomaly insert error",
				applogger.String("event_id", e.EventID),
				applogger.String("sensor_id", e.SensorID),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("insert anomaly event: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse anomaly insert ok",
			applogger.String("event_id", e.EventID),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

// Schema returns the idempotent DDL for the anomaly events table.
func Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS anomaly_events (
            stable_id       String,
            event_id        String,
            reading_id      String,
            sensor_id       LowCardinality(String),
            platform_id     LowCardinality(String),
            sensor_type     LowCardinality(String),
            kind            LowCardinality(String),
            severity        LowCardinality(String),
            actual_value    Float64,
            reference_value Float64,
            unit            LowCardinality(String),
            description     String,
            detected_at     DateTime64(3)
        ) ENGINE = ReplacingMergeTree
        PARTITION BY toYYYYMM(detected_at)
        ORDER BY (sensor_id, detected_at, stable_id)`,
	}
}
