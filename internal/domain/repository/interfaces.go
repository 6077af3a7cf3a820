package repository

import (
	"context"
	"time"

	"RigWatch/internal/domain/models"
)

// ThresholdProvider serves the current threshold table snapshot.
// Lookup misses are not errors; detection simply no-ops for that reading.
type ThresholdProvider interface {
	Threshold(sensorType, subtype string) (*models.ThresholdConfig, bool)
	Reload(ctx context.Context) error
}

// RuleProvider serves the current escalation rule set snapshot, ordered by
// severity then definition order.
type RuleProvider interface {
	RulesFor(severity models.Severity) []models.EscalationRule
	Reload(ctx context.Context) error
}

// EventSink persists an anomaly event to one durable destination.
// Writes must be idempotent on the event's stable identifier.
type EventSink interface {
	Name() string
	Write(ctx context.Context, e *models.AnomalyEvent) error
}

// AlertLog is the relational alert store with operator state.
type AlertLog interface {
	EventSink
	RecordOutcome(ctx context.Context, eventID string, outcome *models.EscalationOutcome) error
	List(ctx context.Context, f models.AlertFilter) ([]*models.AlertRecord, error)
	Get(ctx context.Context, eventID string) (*models.AlertRecord, error)
	Acknowledge(ctx context.Context, eventID, by string) error
	Resolve(ctx context.Context, eventID string) error
}

// Notifier executes one notification action against a target endpoint.
type Notifier interface {
	Notify(ctx context.Context, action models.ActionType, target string, payload *NotificationPayload) error
}

// NotificationPayload is the body handed to the notification transport.
type NotificationPayload struct {
	Event      models.AnomalyEvent `json:"event"`
	RuleID     int64               `json:"rule_id"`
	Action     models.ActionType   `json:"action"`
	Attempt    int                 `json:"attempt"`
	MaxRetries int                 `json:"max_retries"`
	Delay      time.Duration       `json:"delay_ms"`
}

// DedupStore holds last-emission state per dedup key.
type DedupStore interface {
	Last(ctx context.Context, key string) (lastAt time.Time, severity models.Severity, ok bool, err error)
	Record(ctx context.Context, key string, at time.Time, severity models.Severity, ttl time.Duration) error
}

// Metrics records operational measurements.
type Metrics interface {
	RecordReading(sensorType string)
	RecordAnomaly(kind, severity string)
	RecordSuppressed(kind string)
	RecordEscalation(action, result string)
	RecordSinkWrite(sink, result string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
