package models

import "time"

// ActionType enumerates the notification channels an escalation rule can invoke.
type ActionType string

const (
	ActionLog       ActionType = "log"
	ActionWebhook   ActionType = "webhook"
	ActionEmail     ActionType = "email"
	ActionPagerDuty ActionType = "pagerduty"
	ActionSMS       ActionType = "sms"
)

// EscalationRule maps a severity to one notification action with retry policy.
// Rules are static configuration, reloadable as a whole, and immutable during
// an escalation cycle.
type EscalationRule struct {
	ID         int64         `json:"id"`
	Severity   Severity      `json:"severity"`
	Action     ActionType    `json:"action"`
	Target     string        `json:"target"`
	Delay      time.Duration `json:"delay"`
	MaxRetries int           `json:"max_retries"`
	Enabled    bool          `json:"enabled"`
}

// ActionOutcome records one rule's dispatch result for one event.
type ActionOutcome struct {
	RuleID    int64      `json:"rule_id"`
	Action    ActionType `json:"action"`
	Target    string     `json:"target"`
	Attempts  int        `json:"attempts"`
	Succeeded bool       `json:"succeeded"`
	Error     string     `json:"error,omitempty"`
}

// EscalationOutcome aggregates all action outcomes for one event.
type EscalationOutcome struct {
	EventID string          `json:"event_id"`
	Actions []ActionOutcome `json:"actions"`
}

// Failed returns the outcomes of actions that exhausted their retries.
func (o *EscalationOutcome) Failed() []ActionOutcome {
	var out []ActionOutcome
	for _, a := range o.Actions {
		if !a.Succeeded {
			out = append(out, a)
		}
	}
	return out
}
