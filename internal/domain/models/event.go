package models

import (
	"fmt"
	"time"
)

// Severity is the ordered anomaly classification. Higher values are worse.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

// String returns the wire representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL"
	case SeverityWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}

// ParseSeverity maps a wire string back to a Severity. Unknown input maps to INFO.
func ParseSeverity(s string) Severity {
	switch s {
	case "CRITICAL":
		return SeverityCritical
	case "WARNING":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// MarshalJSON encodes severity as its string form.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes severity from its string form.
func (s *Severity) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("invalid severity %q", b)
	}
	*s = ParseSeverity(string(b[1 : len(b)-1]))
	return nil
}

// AnomalyKind identifies which detector produced a finding.
type AnomalyKind string

const (
	KindThreshold     AnomalyKind = "threshold"
	KindMovingAverage AnomalyKind = "moving_average"
	KindRateOfChange  AnomalyKind = "rate_of_change"
)

// Finding is a single detector's verdict for one reading.
type Finding struct {
	Kind           AnomalyKind
	Severity       Severity
	ActualValue    float64
	ReferenceValue float64
	Description    string
}

// AnomalyEvent is the merged finding emitted by the detector pipeline for one
// reading. Immutable once created.
type AnomalyEvent struct {
	EventID        string      `json:"event_id"`
	ReadingID      string      `json:"reading_id"`
	SensorID       string      `json:"sensor_id"`
	PlatformID     string      `json:"platform_id"`
	SensorType     string      `json:"sensor_type"`
	Kind           AnomalyKind `json:"anomaly_kind"`
	Severity       Severity    `json:"severity"`
	ActualValue    float64     `json:"actual_value"`
	ReferenceValue float64     `json:"reference_value"`
	Unit           string      `json:"unit"`
	Description    string      `json:"description"`
	DetectedAt     int64       `json:"detected_at"` // epoch milliseconds
}

// DetectionTime returns the detection timestamp as time.Time.
func (e *AnomalyEvent) DetectionTime() time.Time {
	return time.UnixMilli(e.DetectedAt)
}

// StableID is the idempotency key sinks are expected to dedupe on.
func (e *AnomalyEvent) StableID() string {
	return fmt.Sprintf("%s:%s:%d", e.ReadingID, e.Kind, e.DetectedAt)
}

// DedupKey identifies the suppression bucket for an event.
func (e *AnomalyEvent) DedupKey() string {
	return e.SensorID + "/" + string(e.Kind)
}
