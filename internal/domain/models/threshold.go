package models

// ThresholdConfig holds the static bounds for one (sensor type, subtype).
// Loaded from reference data at startup and refreshed periodically; read-only
// to detectors during a detection cycle.
type ThresholdConfig struct {
	SensorType   string  `json:"sensor_type"`
	Subtype      string  `json:"subtype"`
	WarningLow   float64 `json:"warning_low"`
	WarningHigh  float64 `json:"warning_high"`
	CriticalLow  float64 `json:"critical_low"`
	CriticalHigh float64 `json:"critical_high"`
	Unit         string  `json:"unit"`
}

// Key returns the lookup key for a threshold table.
func (t *ThresholdConfig) Key() string {
	return ThresholdKey(t.SensorType, t.Subtype)
}

// ThresholdKey builds the (type, subtype) lookup key.
func ThresholdKey(sensorType, subtype string) string {
	return sensorType + "/" + subtype
}
