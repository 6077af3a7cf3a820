package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"RigWatch/internal/domain/models"
	applogger "RigWatch/pkg/logger"
)

// ErrAlertNotFound is returned when an event id has no alert row.
var ErrAlertNotFound = fmt.Errorf("alert not found")

// PGAlertLog is the relational alert store: one row per escalated event with
// operator ack/resolve state and the recorded escalation outcome.
type PGAlertLog struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewPGAlertLog(db *sql.DB) *PGAlertLog {
	return &PGAlertLog{db: db}
}

// SetLogger injects a structured logger.
func (s *PGAlertLog) SetLogger(l *applogger.Logger) { s.l = l }

func (s *PGAlertLog) Name() string { return "postgres" }

// Write inserts the alert row. Conflicts on event_id are ignored so redelivery
// never duplicates or resets operator state.
func (s *PGAlertLog) Write(ctx context.Context, e *models.AnomalyEvent) error {
	const q = `
		INSERT INTO alert_history
			(event_id, reading_id, sensor_id, platform_id, sensor_type, kind, severity,
			 actual_value, reference_value, unit, description, detected_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (event_id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, q,
		e.EventID, e.ReadingID, e.SensorID, e.PlatformID, e.SensorType,
		string(e.Kind), e.Severity.String(), e.ActualValue, e.ReferenceValue,
		e.Unit, e.Description, e.DetectionTime(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// RecordOutcome attaches the escalation outcome to the alert row.
func (s *PGAlertLog) RecordOutcome(ctx context.Context, eventID string, outcome *models.EscalationOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_history SET escalation_outcome = $2 WHERE event_id = $1`,
		eventID, data)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record outcome %s: %w", eventID, ErrAlertNotFound)
	}
	return nil
}

const alertColumns = `
	event_id, reading_id, sensor_id, platform_id, sensor_type, kind, severity,
	actual_value, reference_value, unit, description, detected_at,
	acknowledged, COALESCE(acknowledged_by, ''), acknowledged_at,
	resolved, resolved_at, created_at`

// List returns alerts matching the filter, newest first.
func (s *PGAlertLog) List(ctx context.Context, f models.AlertFilter) ([]*models.AlertRecord, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.SensorID != "" {
		add("sensor_id = ?", f.SensorID)
	}
	if f.Severity != "" {
		add("severity = ?", f.Severity)
	}
	if !f.From.IsZero() {
		add("detected_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("detected_at <= ?", f.To)
	}
	if f.Unresolved {
		conds = append(conds, "NOT resolved")
	}

	q := "SELECT" + alertColumns + " FROM alert_history"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY detected_at DESC"
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q += " LIMIT " + strconv.Itoa(limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.AlertRecord
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list alerts rows: %w", err)
	}
	return out, nil
}

// Get returns one alert by event id.
func (s *PGAlertLog) Get(ctx context.Context, eventID string) (*models.AlertRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+alertColumns+" FROM alert_history WHERE event_id = $1", eventID)
	rec, err := scanAlert(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Acknowledge marks the alert acknowledged by an operator.
func (s *PGAlertLog) Acknowledge(ctx context.Context, eventID, by string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_history
		SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = $3
		WHERE event_id = $1`,
		eventID, by, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("acknowledge alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("acknowledge %s: %w", eventID, ErrAlertNotFound)
	}
	return nil
}

// Resolve marks the alert resolved.
func (s *PGAlertLog) Resolve(ctx context.Context, eventID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_history
		SET resolved = TRUE, resolved_at = $2
		WHERE event_id = $1`,
		eventID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("resolve %s: %w", eventID, ErrAlertNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.AlertRecord, error) {
	var (
		rec        models.AlertRecord
		kind       string
		severity   string
		detectedAt time.Time
	)
	err := row.Scan(
		&rec.Event.EventID, &rec.Event.ReadingID, &rec.Event.SensorID,
		&rec.Event.PlatformID, &rec.Event.SensorType, &kind, &severity,
		&rec.Event.ActualValue, &rec.Event.ReferenceValue, &rec.Event.Unit,
		&rec.Event.Description, &detectedAt,
		&rec.Acknowledged, &rec.AcknowledgedBy, &rec.AcknowledgedAt,
		&rec.Resolved, &rec.ResolvedAt, &rec.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	rec.Event.Kind = models.AnomalyKind(kind)
	rec.Event.Severity = models.ParseSeverity(severity)
	rec.Event.DetectedAt = detectedAt.UnixMilli()
	return &rec, nil
}

// AlertSchema returns the idempotent DDL for the alert tables.
func AlertSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS alert_history (
			event_id           TEXT PRIMARY KEY,
			reading_id         TEXT NOT NULL,
			sensor_id          TEXT NOT NULL,
			platform_id        TEXT NOT NULL,
			sensor_type        TEXT NOT NULL,
			kind               TEXT NOT NULL,
			severity           TEXT NOT NULL,
			actual_value       DOUBLE PRECISION NOT NULL,
			reference_value    DOUBLE PRECISION NOT NULL,
			unit               TEXT NOT NULL DEFAULT '',
			description        TEXT NOT NULL DEFAULT '',
			detected_at        TIMESTAMPTZ NOT NULL,
			acknowledged       BOOLEAN NOT NULL DEFAULT FALSE,
			acknowledged_by    TEXT,
			acknowledged_at    TIMESTAMPTZ,
			resolved           BOOLEAN NOT NULL DEFAULT FALSE,
			resolved_at        TIMESTAMPTZ,
			escalation_outcome JSONB,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_history_sensor
			ON alert_history (sensor_id, detected_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_history_unresolved
			ON alert_history (detected_at DESC) WHERE NOT resolved`,
	}
}

// EnsureAlertSchema applies the alert DDL.
func EnsureAlertSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range AlertSchema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("alert schema: %w", err)
		}
	}
	return nil
}
