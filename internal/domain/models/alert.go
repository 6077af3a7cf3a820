package models

import "time"

// AlertRecord is the durable representation of an escalated anomaly plus its
// operator state. Created unacknowledged and unresolved; ack/resolve are
// mutated later through the ops API.
type AlertRecord struct {
	Event          AnomalyEvent `json:"event"`
	Acknowledged   bool         `json:"acknowledged"`
	AcknowledgedBy string       `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time   `json:"acknowledged_at,omitempty"`
	Resolved       bool         `json:"resolved"`
	ResolvedAt     *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// NewAlertRecord builds the initial record for a freshly escalated event.
func NewAlertRecord(e AnomalyEvent) *AlertRecord {
	return &AlertRecord{Event: e, CreatedAt: time.Now().UTC()}
}

// AlertFilter narrows alert-log queries from the ops API.
type AlertFilter struct {
	SensorID   string
	Severity   string
	Unresolved bool
	From, To   time.Time
	Limit      int
}
