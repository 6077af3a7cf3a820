package refdata

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"RigWatch/internal/domain/models"
	"RigWatch/pkg/logger"
)

type ruleTable map[models.Severity][]models.EscalationRule

// RuleStore serves escalation rule lookups from an immutable snapshot,
// grouped by severity and ordered by definition order within a group.
type RuleStore struct {
	load func(ctx context.Context) ([]models.EscalationRule, error)
	snap atomic.Pointer[ruleTable]
	log  *logger.Logger
}

// NewRuleStore loads the initial rule set from Postgres. An empty
// escalation_rules table falls back to the built-in defaults so a fresh
// deployment still pages on CRITICAL. A load failure is fatal at startup.
func NewRuleStore(ctx context.Context, db *sql.DB, log *logger.Logger) (*RuleStore, error) {
	s := &RuleStore{load: loadRules(db), log: log}
	if err := s.Reload(ctx); err != nil {
		return nil, fmt.Errorf("initial rule load: %w", err)
	}
	return s, nil
}

func newRuleStore(load func(ctx context.Context) ([]models.EscalationRule, error), log *logger.Logger) *RuleStore {
	return &RuleStore{load: load, log: log}
}

// RulesFor returns the rules matching the severity, in definition order.
// Callers must not mutate the returned slice.
func (s *RuleStore) RulesFor(severity models.Severity) []models.EscalationRule {
	table := s.snap.Load()
	if table == nil {
		return nil
	}
	return (*table)[severity]
}

// Reload replaces the whole rule set with a freshly loaded snapshot.
func (s *RuleStore) Reload(ctx context.Context) error {
	rules, err := s.load(ctx)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		rules = DefaultRules()
		s.log.Warn("escalation_rules table is empty, using built-in defaults")
	}

	table := make(ruleTable)
	for _, r := range rules {
		table[r.Severity] = append(table[r.Severity], r)
	}
	s.snap.Store(&table)

	s.log.Info("escalation rules reloaded", logger.Int("rules", len(rules)))
	return nil
}

// DefaultRules is the seed rule set: CRITICAL pages through every channel,
// WARNING posts a webhook, INFO only logs.
func DefaultRules() []models.EscalationRule {
	return []models.EscalationRule{
		{ID: 1, Severity: models.SeverityCritical, Action: models.ActionWebhook, Target: "http://alert-gateway:8080/hooks/critical", MaxRetries: 3, Enabled: true},
		{ID: 2, Severity: models.SeverityCritical, Action: models.ActionPagerDuty, Target: "http://alert-gateway:8080/pagerduty", MaxRetries: 3, Enabled: true},
		{ID: 3, Severity: models.SeverityCritical, Action: models.ActionSMS, Target: "http://alert-gateway:8080/sms", MaxRetries: 3, Enabled: true},
		{ID: 4, Severity: models.SeverityWarning, Action: models.ActionWebhook, Target: "http://alert-gateway:8080/hooks/warning", MaxRetries: 3, Enabled: true},
		{ID: 5, Severity: models.SeverityInfo, Action: models.ActionLog, Target: "", MaxRetries: 0, Enabled: true},
	}
}
