package detector

import (
	"fmt"
	"math"
	"time"

	"RigWatch/internal/domain/models"
)

// RateOfChangeConfig holds the tunables for the rate-of-change detector.
type RateOfChangeConfig struct {
	MaxRate float64       // allowed absolute rate, units per second
	MaxGap  time.Duration // gap beyond which the reading becomes a new baseline
}

// RateOfChangeDetector flags sudden spikes between consecutive readings of the
// same sensor. Keeps only the previous (value, timestamp) pair per sensor.
type RateOfChangeDetector struct {
	store *Store
	cfg   RateOfChangeConfig
}

// NewRateOfChangeDetector creates a rate-of-change detector over the shared
// state store.
func NewRateOfChangeDetector(store *Store, cfg RateOfChangeConfig) *RateOfChangeDetector {
	if cfg.MaxRate <= 0 {
		cfg.MaxRate = 10.0
	}
	if cfg.MaxGap <= 0 {
		cfg.MaxGap = 60 * time.Second
	}
	return &RateOfChangeDetector{store: store, cfg: cfg}
}

// Evaluate computes the rate against the stored previous sample. A duplicate
// or out-of-order timestamp skips evaluation without touching stored state;
// every other path updates the baseline, spike or not.
func (d *RateOfChangeDetector) Evaluate(r *models.SensorReading) *models.Finding {
	prev, ok := d.store.LastSample(r.SensorID)
	if !ok {
		d.store.SetLastSample(r.SensorID, LastSample{Value: r.Value, TimestampMS: r.Timestamp})
		return nil
	}

	elapsed := float64(r.Timestamp-prev.TimestampMS) / 1000.0
	if elapsed <= 0 {
		return nil
	}

	if elapsed > d.cfg.MaxGap.Seconds() {
		// Too stale for a meaningful rate; the reading is the new baseline.
		d.store.SetLastSample(r.SensorID, LastSample{Value: r.Value, TimestampMS: r.Timestamp})
		return nil
	}

	rate := (r.Value - prev.Value) / elapsed
	d.store.SetLastSample(r.SensorID, LastSample{Value: r.Value, TimestampMS: r.Timestamp})

	abs := math.Abs(rate)
	switch {
	case abs > 2*d.cfg.MaxRate:
		return &models.Finding{
			Kind:           models.KindRateOfChange,
			Severity:       models.SeverityCritical,
			ActualValue:    r.Value,
			ReferenceValue: d.cfg.MaxRate,
			Description: fmt.Sprintf("sensor %s: critical spike, rate %.4f units/s over %.1fs (max %g)",
				r.SensorID, rate, elapsed, d.cfg.MaxRate),
		}
	case abs > d.cfg.MaxRate:
		return &models.Finding{
			Kind:           models.KindRateOfChange,
			Severity:       models.SeverityWarning,
			ActualValue:    r.Value,
			ReferenceValue: d.cfg.MaxRate,
			Description: fmt.Sprintf("sensor %s: spike, rate %.4f units/s over %.1fs (max %g)",
				r.SensorID, rate, elapsed, d.cfg.MaxRate),
		}
	}
	return nil
}
