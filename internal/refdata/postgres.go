package refdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"RigWatch/internal/domain/models"
)

// OpenPostgres creates the reference-data connection pool and verifies it.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func loadThresholds(db *sql.DB) func(ctx context.Context) ([]models.ThresholdConfig, error) {
	return func(ctx context.Context) ([]models.ThresholdConfig, error) {
		rows, err := db.QueryContext(ctx, `
			SELECT sensor_type, COALESCE(subtype, ''), warning_low, warning_high,
			       critical_low, critical_high, COALESCE(unit, '')
			FROM threshold_config`)
		if err != nil {
			return nil, fmt.Errorf("query threshold_config: %w", err)
		}
		defer rows.Close()

		var out []models.ThresholdConfig
		for rows.Next() {
			var t models.ThresholdConfig
			if err := rows.Scan(&t.SensorType, &t.Subtype, &t.WarningLow, &t.WarningHigh,
				&t.CriticalLow, &t.CriticalHigh, &t.Unit); err != nil {
				return nil, fmt.Errorf("scan threshold_config: %w", err)
			}
			out = append(out, t)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate threshold_config: %w", err)
		}
		return out, nil
	}
}

func loadRules(db *sql.DB) func(ctx context.Context) ([]models.EscalationRule, error) {
	return func(ctx context.Context) ([]models.EscalationRule, error) {
		rows, err := db.QueryContext(ctx, `
			SELECT id, severity, action, target, delay_seconds, max_retries, enabled
			FROM escalation_rules
			ORDER BY id`)
		if err != nil {
			return nil, fmt.Errorf("query escalation_rules: %w", err)
		}
		defer rows.Close()

		var out []models.EscalationRule
		for rows.Next() {
			var (
				r        models.EscalationRule
				severity string
				action   string
				delaySec int
			)
			if err := rows.Scan(&r.ID, &severity, &action, &r.Target, &delaySec, &r.MaxRetries, &r.Enabled); err != nil {
				return nil, fmt.Errorf("scan escalation_rules: %w", err)
			}
			r.Severity = models.ParseSeverity(severity)
			r.Action = models.ActionType(action)
			r.Delay = time.Duration(delaySec) * time.Second
			out = append(out, r)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate escalation_rules: %w", err)
		}
		return out, nil
	}
}
