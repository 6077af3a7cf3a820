package models

import "time"

// Quality flags attached to readings by the upstream enrichment stage.
const (
	QualityGood      = "GOOD"
	QualitySuspect   = "SUSPECT"
	QualityBad       = "BAD"
	QualityUncertain = "UNCERTAIN"
)

// SensorReading is a single timestamped measurement from one sensor.
// Readings arrive in order per sensor and are never mutated after decode.
type SensorReading struct {
	ReadingID   string  `json:"reading_id" validate:"required"`
	PlatformID  string  `json:"platform_id" validate:"required"`
	SensorID    string  `json:"sensor_id" validate:"required"`
	SensorType  string  `json:"sensor_type" validate:"required"`
	Subtype     string  `json:"subtype"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	Timestamp   int64   `json:"timestamp" validate:"required,gt=0"` // epoch milliseconds
	QualityFlag string  `json:"quality_flag" default:"GOOD"`
}

// EventTime returns the reading timestamp as time.Time.
func (r *SensorReading) EventTime() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Usable reports whether the reading should enter the detector pipeline.
// Suspect or bad quality is counted upstream, not treated as an error.
func (r *SensorReading) Usable() bool {
	return r.QualityFlag == "" || r.QualityFlag == QualityGood
}
