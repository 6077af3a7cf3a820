package detector

import (
	"fmt"

	"RigWatch/internal/domain/models"
	domrepo "RigWatch/internal/domain/repository"
)

// ThresholdDetector compares readings against static min/max bounds from
// reference data. Stateless; a missing threshold config is a no-op, not an
// error.
type ThresholdDetector struct {
	thresholds domrepo.ThresholdProvider
}

// NewThresholdDetector creates a threshold detector backed by the given provider.
func NewThresholdDetector(thresholds domrepo.ThresholdProvider) *ThresholdDetector {
	return &ThresholdDetector{thresholds: thresholds}
}

// Evaluate classifies one reading. Critical bounds are checked before warning
// bounds so the highest severity always wins.
func (d *ThresholdDetector) Evaluate(r *models.SensorReading) *models.Finding {
	cfg, ok := d.thresholds.Threshold(r.SensorType, r.Subtype)
	if !ok {
		return nil
	}

	v := r.Value
	switch {
	case v >= cfg.CriticalHigh:
		return d.finding(r, models.SeverityCritical, cfg.CriticalHigh,
			fmt.Sprintf("sensor %s: value %g >= critical high %g", r.SensorID, v, cfg.CriticalHigh))
	case v <= cfg.CriticalLow:
		return d.finding(r, models.SeverityCritical, cfg.CriticalLow,
			fmt.Sprintf("sensor %s: value %g <= critical low %g", r.SensorID, v, cfg.CriticalLow))
	case v >= cfg.WarningHigh:
		return d.finding(r, models.SeverityWarning, cfg.WarningHigh,
			fmt.Sprintf("sensor %s: value %g >= warning high %g", r.SensorID, v, cfg.WarningHigh))
	case v <= cfg.WarningLow:
		return d.finding(r, models.SeverityWarning, cfg.WarningLow,
			fmt.Sprintf("sensor %s: value %g <= warning low %g", r.SensorID, v, cfg.WarningLow))
	}
	return nil
}

func (d *ThresholdDetector) finding(r *models.SensorReading, sev models.Severity, ref float64, desc string) *models.Finding {
	return &models.Finding{
		Kind:           models.KindThreshold,
		Severity:       sev,
		ActualValue:    r.Value,
		ReferenceValue: ref,
		Description:    desc,
	}
}
